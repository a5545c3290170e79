package core

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"

	apperr "github.com/iceymoss/go-taskplan/pkg/errors"
	"github.com/iceymoss/go-taskplan/pkg/storage"
	"github.com/iceymoss/go-taskplan/pkg/xerr"
)

// SizeRecord 对应 size.json
type SizeRecord struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// MtimeRecord 对应 mtime.json
type MtimeRecord struct {
	Name  string  `json:"name"`
	Mtime float64 `json:"mtime"`
}

// AllDataRecord 对应 alldata.json
type AllDataRecord struct {
	Name     string  `json:"name"`
	Size     int64   `json:"size"`
	Mtime    float64 `json:"mtime"`
	Priority int     `json:"priority"`
}

// EpochSeconds 把修改时间转换为带小数的 epoch 秒，不做取整
func EpochSeconds(info fs.FileInfo) float64 {
	return float64(info.ModTime().UnixNano()) / 1e9
}

// Extract 根据 topic 从文件信息构造记录
func (t Topic) Extract(name string, info fs.FileInfo, priority int) (any, error) {
	switch t {
	case TopicSize:
		return SizeRecord{Name: name, Size: info.Size()}, nil
	case TopicMtime:
		return MtimeRecord{Name: name, Mtime: EpochSeconds(info)}, nil
	case TopicAllData:
		return AllDataRecord{
			Name:     name,
			Size:     info.Size(),
			Mtime:    EpochSeconds(info),
			Priority: priority,
		}, nil
	default:
		return nil, apperr.Newf(xerr.INVALID_TOPICS, "cannot extract %s", t)
	}
}

// WriteRecord 读取源文件的一项元数据并以 JSON 写到 path，已有文件会被覆盖。
// 源文件不存在或不可读时返回 SOURCE_MISSING，写入失败返回 WRITE_FAILURE。
func WriteRecord(ctx context.Context, store storage.FileStorage, topic Topic, source SourceArtifact, priority int, path string) error {
	name := source.Path()
	info, err := store.Stat(ctx, name)
	if err != nil {
		return apperr.Wrap(xerr.SOURCE_MISSING, name, err)
	}
	if info.IsDir() {
		return apperr.Newf(xerr.SOURCE_MISSING, "%s is a directory", name)
	}

	record, err := topic.Extract(name, info, priority)
	if err != nil {
		return err
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal %s record: %w", topic, err)
	}
	return store.WriteFile(ctx, path, data)
}
