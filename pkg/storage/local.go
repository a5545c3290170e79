package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"

	apperr "github.com/iceymoss/go-taskplan/pkg/errors"
	"github.com/iceymoss/go-taskplan/pkg/logger"
	"github.com/iceymoss/go-taskplan/pkg/xerr"

	"go.uber.org/zap"
)

const (
	defaultDirPerm  fs.FileMode = 0o755
	defaultFilePerm fs.FileMode = 0o644
)

// LocalStorage 本地文件存储实现
type LocalStorage struct {
	dirPerm  fs.FileMode
	filePerm fs.FileMode
}

var _ FileStorage = (*LocalStorage)(nil)

// NewLocalStorage 创建本地文件存储实例
func NewLocalStorage() *LocalStorage {
	return &LocalStorage{
		dirPerm:  defaultDirPerm,
		filePerm: defaultFilePerm,
	}
}

func (s *LocalStorage) Stat(ctx context.Context, path string) (fs.FileInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return f.Stat()
}

func (s *LocalStorage) WriteFile(ctx context.Context, path string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	tmp, err := os.CreateTemp(dir, "."+base+".*.tmp")
	if err != nil {
		return apperr.Wrap(xerr.WRITE_FAILURE, path, err)
	}
	tmpPath := tmp.Name()

	// 任意一步失败都要清掉临时文件，不留下半截内容
	fail := func(err error) error {
		tmp.Close()
		os.Remove(tmpPath)
		return apperr.Wrap(xerr.WRITE_FAILURE, path, err)
	}

	if _, err := tmp.Write(data); err != nil {
		return fail(err)
	}
	if err := tmp.Sync(); err != nil {
		return fail(err)
	}
	if err := tmp.Chmod(s.filePerm); err != nil {
		return fail(err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return apperr.Wrap(xerr.WRITE_FAILURE, path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return apperr.Wrap(xerr.WRITE_FAILURE, path, err)
	}

	logger.Debug("写入文件", zap.String("path", path), zap.Int("bytes", len(data)))
	return nil
}

func (s *LocalStorage) RemoveFile(ctx context.Context, path string) (bool, error) {
	err := os.Remove(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("remove %s: %w", path, err)
	}
	return true, nil
}

func (s *LocalStorage) EnsureDir(ctx context.Context, path string) error {
	if err := os.MkdirAll(path, s.dirPerm); err != nil {
		return apperr.Wrap(xerr.WRITE_FAILURE, path, err)
	}
	return nil
}

func (s *LocalStorage) RemoveDir(ctx context.Context, path string) error {
	err := os.Remove(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if errors.Is(err, syscall.ENOTEMPTY) || errors.Is(err, syscall.EEXIST) {
		return apperr.Wrap(xerr.DIR_NOT_EMPTY, path, err)
	}
	// 不同平台的错误码不一致，兜底再看一次目录内容
	if entries, readErr := os.ReadDir(path); readErr == nil && len(entries) > 0 {
		return apperr.Wrap(xerr.DIR_NOT_EMPTY, path, err)
	}
	return fmt.Errorf("remove dir %s: %w", path, err)
}
