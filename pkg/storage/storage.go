package storage

import (
	"context"
	"io/fs"
)

// FileStorage 文件存储接口
// 任务描述中的所有文件系统副作用都经过这里，测试可以替换实现以注入故障
type FileStorage interface {
	// Stat 打开并读取文件信息，文件不存在或不可读时返回错误
	Stat(ctx context.Context, path string) (fs.FileInfo, error)

	// WriteFile 原子写入：先写同目录临时文件再 rename，读者不会看到写了一半的内容
	WriteFile(ctx context.Context, path string, data []byte) error

	// RemoveFile 删除文件，文件不存在时返回 false 且不报错
	RemoveFile(ctx context.Context, path string) (bool, error)

	// EnsureDir 创建目录（含父目录），已存在时直接成功
	EnsureDir(ctx context.Context, path string) error

	// RemoveDir 删除空目录，目录不存在时直接成功，非空时返回 DIR_NOT_EMPTY
	RemoveDir(ctx context.Context, path string) error
}
