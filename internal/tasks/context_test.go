package tasks

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iceymoss/go-taskplan/internal/core"
	apperr "github.com/iceymoss/go-taskplan/pkg/errors"
	"github.com/iceymoss/go-taskplan/pkg/storage"
	"github.com/iceymoss/go-taskplan/pkg/xerr"
)

func TestTaskContextPaths(t *testing.T) {
	root := t.TempDir()
	src := core.SourceArtifact{Root: root, Name: "alfa.txt"}
	tc := NewTaskContext(src, "report_file_size_", 123, storage.NewLocalStorage())

	assert.Equal(t, filepath.Join(root, "report_file_size_alfa.txt"), tc.TargetDirPath())
	assert.Equal(t, filepath.Join(root, "alfa.txt"), tc.SourcePath())

	paths := map[string]bool{}
	for _, topic := range core.AllTopics {
		p := tc.TargetPathFor(topic)
		assert.Equal(t, p, tc.TargetPathFor(topic), "重复调用应得到相同路径")
		assert.Equal(t, tc.TargetDirPath(), filepath.Dir(p))
		paths[p] = true
	}
	assert.Len(t, paths, len(core.AllTopics))

	// 构造和计算路径都不应创建目录
	assert.NoDirExists(t, tc.TargetDirPath())

	again := NewTaskContext(src, "report_file_size_", 123, storage.NewLocalStorage())
	assert.Equal(t, tc.TargetDirPath(), again.TargetDirPath())
}

func TestTaskContextTargetDirCreates(t *testing.T) {
	ctx := context.Background()
	tc := NewTaskContext(core.SourceArtifact{Root: t.TempDir(), Name: "alfa.txt"}, "out_", 0, storage.NewLocalStorage())

	dir, err := tc.TargetDir(ctx)
	require.NoError(t, err)
	assert.DirExists(t, dir)

	_, err = tc.TargetDir(ctx)
	require.NoError(t, err, "目录已存在时也应成功")
}

func TestRemoveTargetDirRefusesNonEmpty(t *testing.T) {
	ctx := context.Background()
	tc := NewTaskContext(core.SourceArtifact{Root: t.TempDir(), Name: "alfa.txt"}, "out_", 0, storage.NewLocalStorage())

	require.NoError(t, tc.RemoveTargetDir(ctx), "目录不存在时应直接成功")

	dir, err := tc.TargetDir(ctx)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("keep"), 0o644))

	err = tc.RemoveTargetDir(ctx)
	assert.True(t, apperr.IsCode(err, xerr.DIR_NOT_EMPTY))
	assert.FileExists(t, filepath.Join(dir, "notes.txt"))
}
