package core

import "path/filepath"

// SourceArtifact 源文件：根目录 + 文件名
type SourceArtifact struct {
	Root string
	Name string
}

// Path 返回源文件路径，Root 为空或 "." 时即为 Name 本身
func (a SourceArtifact) Path() string {
	return filepath.Join(a.Root, a.Name)
}

// BaseName 返回文件名部分，作为任务名使用
func (a SourceArtifact) BaseName() string {
	return filepath.Base(a.Name)
}
