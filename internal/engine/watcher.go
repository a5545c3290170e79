package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/iceymoss/go-taskplan/pkg/logger"
)

// Watcher 源文件变化时重新运行任务族
type Watcher struct {
	sched    *Scheduler
	family   string
	root     string
	sources  map[string]struct{}
	debounce time.Duration
}

// NewWatcher sources 为计划中的源文件路径
func NewWatcher(sched *Scheduler, family, root string, sources []string) *Watcher {
	set := make(map[string]struct{}, len(sources))
	for _, s := range sources {
		set[filepath.Clean(s)] = struct{}{}
	}
	return &Watcher{
		sched:    sched,
		family:   family,
		root:     root,
		sources:  set,
		debounce: 300 * time.Millisecond,
	}
}

// relevant 只关心源文件本身的内容和存在性变化
func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if _, ok := w.sources[filepath.Clean(ev.Name)]; !ok {
		return false
	}
	return ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename)
}

type sourceStamp struct {
	exists bool
	size   int64
	mtime  time.Time
}

// snapshot 记录源文件当前状态，用来识别由自身运行产生的事件
func (w *Watcher) snapshot() map[string]sourceStamp {
	out := make(map[string]sourceStamp, len(w.sources))
	for path := range w.sources {
		info, err := os.Stat(path)
		if err != nil {
			out[path] = sourceStamp{}
			continue
		}
		out[path] = sourceStamp{exists: true, size: info.Size(), mtime: info.ModTime()}
	}
	return out
}

func sameStamps(a, b map[string]sourceStamp) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		o, ok := b[k]
		if !ok || o.exists != v.exists || o.size != v.size || !o.mtime.Equal(v.mtime) {
			return false
		}
	}
	return true
}

// Watch 先运行一次，之后每次源文件变化（去抖后）再运行，直到 ctx 结束
func (w *Watcher) Watch(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	if err := os.MkdirAll(w.root, 0o755); err != nil {
		return fmt.Errorf("create root %s: %w", w.root, err)
	}
	if err := fw.Add(w.root); err != nil {
		return fmt.Errorf("watch %s: %w", w.root, err)
	}

	last := w.run(ctx)

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if w.relevant(ev) {
				logger.Debug("源文件变化", zap.String("path", ev.Name), zap.String("op", ev.Op.String()))
				timer.Reset(w.debounce)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("⚠️ 监听出错", zap.Error(err))
		case <-timer.C:
			// create_file 写源文件也会触发事件，状态没变就不再跑
			if sameStamps(last, w.snapshot()) {
				continue
			}
			last = w.run(ctx)
		}
	}
}

// run 执行一次任务族，返回执行后的源文件状态
func (w *Watcher) run(ctx context.Context) map[string]sourceStamp {
	if _, err := w.sched.RunNow(ctx, w.family, SourceWatch); err != nil {
		logger.Warn("⚠️ 监听触发运行失败", zap.String("family", w.family), zap.Error(err))
	}
	return w.snapshot()
}
