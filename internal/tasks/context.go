package tasks

import (
	"context"
	"path/filepath"

	"github.com/iceymoss/go-taskplan/internal/core"
	"github.com/iceymoss/go-taskplan/pkg/storage"
)

// TaskContext 把一个源文件绑定到一个报告目录
//
// 构造时不接触文件系统；只有 TargetDir 和写入动作会创建目录。
type TaskContext struct {
	source    core.SourceArtifact
	targetDir string
	priority  int
	store     storage.FileStorage
}

// NewTaskContext 目标目录为 root/(prefix + 文件名)
func NewTaskContext(source core.SourceArtifact, prefix string, priority int, store storage.FileStorage) *TaskContext {
	return &TaskContext{
		source:    source,
		targetDir: TargetDirFor(source, prefix),
		priority:  priority,
		store:     store,
	}
}

// TargetDirFor 只由 (prefix, 源文件) 决定，重复生成得到同一路径
func TargetDirFor(source core.SourceArtifact, prefix string) string {
	return filepath.Join(source.Root, prefix+source.Name)
}

func (c *TaskContext) Source() core.SourceArtifact { return c.source }

func (c *TaskContext) SourcePath() string { return c.source.Path() }

func (c *TaskContext) Priority() int { return c.priority }

// TargetDirPath 返回目标目录路径，不创建目录
func (c *TaskContext) TargetDirPath() string { return c.targetDir }

// TargetDir 返回目标目录，目录不存在时先创建
func (c *TaskContext) TargetDir(ctx context.Context) (string, error) {
	if err := c.EnsureTargetDir(ctx); err != nil {
		return "", err
	}
	return c.targetDir, nil
}

func (c *TaskContext) EnsureTargetDir(ctx context.Context) error {
	return c.store.EnsureDir(ctx, c.targetDir)
}

// TargetPathFor 返回 topic 的输出文件路径
func (c *TaskContext) TargetPathFor(topic core.Topic) string {
	return filepath.Join(c.targetDir, topic.FileName())
}

// Write 提取 topic 对应的元数据并写入目标文件
func (c *TaskContext) Write(ctx context.Context, topic core.Topic) error {
	return core.WriteRecord(ctx, c.store, topic, c.source, c.priority, c.TargetPathFor(topic))
}

// RemoveTargetDir 删除目标目录。目录里还有文件时返回 DIR_NOT_EMPTY，
// 这样调用方必须先逐个清理生成的文件，不会误删别人放进去的东西。
func (c *TaskContext) RemoveTargetDir(ctx context.Context) error {
	return c.store.RemoveDir(ctx, c.targetDir)
}
