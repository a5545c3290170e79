package core

import (
	"fmt"
	"strings"
)

// Topic 表示可以从源文件提取并落盘的一类元数据
type Topic int

const (
	TopicSize Topic = iota + 1
	TopicMtime
	TopicAllData
)

// AllTopics 按固定顺序列出所有 topic
var AllTopics = []Topic{TopicSize, TopicMtime, TopicAllData}

func (t Topic) String() string {
	switch t {
	case TopicSize:
		return "size"
	case TopicMtime:
		return "mtime"
	case TopicAllData:
		return "alldata"
	default:
		return fmt.Sprintf("Topic(%d)", int(t))
	}
}

// FileName 返回该 topic 在目标目录下的固定文件名
func (t Topic) FileName() string {
	switch t {
	case TopicSize:
		return "size.json"
	case TopicMtime:
		return "mtime.json"
	case TopicAllData:
		return "alldata.json"
	default:
		panic(fmt.Sprintf("core: file name of invalid topic %d", int(t)))
	}
}

func (t Topic) Valid() bool {
	switch t {
	case TopicSize, TopicMtime, TopicAllData:
		return true
	default:
		return false
	}
}

// ParseTopic 解析配置中的 topic 名称，大小写不敏感
func ParseTopic(s string) (Topic, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "size":
		return TopicSize, nil
	case "mtime":
		return TopicMtime, nil
	case "alldata":
		return TopicAllData, nil
	default:
		return 0, fmt.Errorf("unknown topic %q", s)
	}
}

func (t Topic) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("invalid topic %d", int(t))
	}
	return []byte(t.String()), nil
}

func (t *Topic) UnmarshalText(text []byte) error {
	v, err := ParseTopic(string(text))
	if err != nil {
		return err
	}
	*t = v
	return nil
}
