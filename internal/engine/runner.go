package engine

import (
	"context"
	"errors"
	"io/fs"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/iceymoss/go-taskplan/internal/tasks"
	"github.com/iceymoss/go-taskplan/pkg/logger"
	"github.com/iceymoss/go-taskplan/pkg/storage"
)

// Status 单个任务描述在一次运行中的结果
type Status string

const (
	StatusExecuted Status = "executed"
	StatusUpToDate Status = "up-to-date"
	StatusFailed   Status = "failed"
	StatusBlocked  Status = "blocked" // 前置任务失败，未执行
)

// Result 单个任务描述的执行结果
type Result struct {
	ID       string        `json:"id"`
	Status   Status        `json:"status"`
	Err      error         `json:"-"`
	Error    string        `json:"error,omitempty"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
}

// Summary 一次运行的汇总，Results 按拓扑序排列
type Summary struct {
	RunID   string   `json:"run_id"`
	Results []Result `json:"results"`
}

func (s *Summary) Count(status Status) int {
	n := 0
	for _, r := range s.Results {
		if r.Status == status {
			n++
		}
	}
	return n
}

// Err 汇总所有失败任务的错误
func (s *Summary) Err() error {
	var errs []error
	for _, r := range s.Results {
		if r.Err != nil {
			errs = append(errs, r.Err)
		}
	}
	return errors.Join(errs...)
}

// HistoryRecorder 持久化每个任务描述的执行记录
type HistoryRecorder interface {
	Record(ctx context.Context, runID string, r Result) error
}

// Runner 消费任务图：按拓扑分层执行，跳过已是最新的任务，不做重试
type Runner struct {
	store   storage.FileStorage
	workers int
	force   bool
	history HistoryRecorder
	log     *zap.Logger
}

type Option func(*Runner)

// WithWorkers 同一层内最多并发执行的任务数
func WithWorkers(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.workers = n
		}
	}
}

// WithForce 忽略新旧判断，全部重新执行
func WithForce(force bool) Option {
	return func(r *Runner) { r.force = force }
}

func WithHistory(h HistoryRecorder) Option {
	return func(r *Runner) { r.history = h }
}

func NewRunner(store storage.FileStorage, opts ...Option) *Runner {
	r := &Runner{
		store:   store,
		workers: 4,
		log:     logger.Named("runner"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run 执行任务图。单个任务失败只影响它自己和依赖它的任务，其它任务照常执行。
// 返回的 error 只表示 ctx 被取消；任务失败通过 Summary.Err 获取。
func (r *Runner) Run(ctx context.Context, g *tasks.Graph) (*Summary, error) {
	summary := &Summary{RunID: uuid.NewString()}
	var mu sync.Mutex
	statuses := make(map[string]Status, g.Len())

	for _, layer := range g.Layers() {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		results := make([]Result, len(layer))
		eg, egCtx := errgroup.WithContext(ctx)
		eg.SetLimit(r.workers)

		for i, d := range layer {
			eg.Go(func() error {
				mu.Lock()
				blocked := false
				for _, p := range g.Prerequisites(d.ID()) {
					if s := statuses[p]; s == StatusFailed || s == StatusBlocked {
						blocked = true
					}
				}
				mu.Unlock()

				var res Result
				if blocked {
					res = Result{ID: d.ID(), Status: StatusBlocked, Started: time.Now()}
				} else {
					res = r.runOne(egCtx, d)
				}

				mu.Lock()
				statuses[d.ID()] = res.Status
				mu.Unlock()
				results[i] = res
				return nil
			})
		}
		_ = eg.Wait()

		for _, res := range results {
			r.record(ctx, summary.RunID, res)
		}
		summary.Results = append(summary.Results, results...)
	}

	r.log.Info("运行结束",
		zap.String("run_id", summary.RunID),
		zap.Int("executed", summary.Count(StatusExecuted)),
		zap.Int("up_to_date", summary.Count(StatusUpToDate)),
		zap.Int("failed", summary.Count(StatusFailed)),
		zap.Int("blocked", summary.Count(StatusBlocked)),
	)
	return summary, nil
}

func (r *Runner) runOne(ctx context.Context, d *tasks.Descriptor) Result {
	res := Result{ID: d.ID(), Started: time.Now()}

	if !r.force {
		fresh, err := r.UpToDate(ctx, d)
		if err != nil {
			r.log.Debug("检查任务是否最新失败", zap.String("task", d.ID()), zap.Error(err))
		}
		if fresh {
			res.Status = StatusUpToDate
			r.log.Debug("任务已是最新，跳过", zap.String("task", d.ID()))
			return res
		}
	}

	err := d.Run(ctx)
	res.Duration = time.Since(res.Started)
	if err != nil {
		res.Status = StatusFailed
		res.Err = err
		res.Error = err.Error()
		r.log.Error("❌ 任务执行失败", zap.String("task", d.ID()), zap.Error(err))
		return res
	}
	res.Status = StatusExecuted
	r.log.Info("✅ 任务执行完成", zap.String("task", d.ID()), zap.Duration("took", res.Duration))
	return res
}

// UpToDate 所有目标存在，且依赖的修改时间不晚于最旧的目标时返回 true。
// 没有依赖的任务只要目标都在就视为最新。
func (r *Runner) UpToDate(ctx context.Context, d *tasks.Descriptor) (bool, error) {
	targets := d.Targets()
	if len(targets) == 0 {
		return false, nil
	}

	var oldest time.Time
	for i, target := range targets {
		info, err := r.store.Stat(ctx, target)
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		if i == 0 || info.ModTime().Before(oldest) {
			oldest = info.ModTime()
		}
	}

	if d.Dependency() == "" {
		return true, nil
	}
	dep, err := r.store.Stat(ctx, d.Dependency())
	if err != nil {
		return false, err
	}
	return !dep.ModTime().After(oldest), nil
}

func (r *Runner) record(ctx context.Context, runID string, res Result) {
	if r.history == nil {
		return
	}
	if err := r.history.Record(ctx, runID, res); err != nil {
		r.log.Warn("⚠️ 记录运行历史失败", zap.String("task", res.ID), zap.Error(err))
	}
}

// Clean 逆序执行清理，残留文件导致的目录保留只作为告警返回
func (r *Runner) Clean(ctx context.Context, descriptors []*tasks.Descriptor) (tasks.CleanReport, error) {
	var total tasks.CleanReport
	var errs []error
	for i := len(descriptors) - 1; i >= 0; i-- {
		d := descriptors[i]
		report, err := d.Clean(ctx)
		total.Merge(report)
		if err != nil {
			r.log.Error("❌ 清理失败", zap.String("task", d.ID()), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		r.log.Info("清理完成",
			zap.String("task", d.ID()),
			zap.Int("removed", len(report.Removed)),
			zap.Int("warnings", len(report.Warnings)),
		)
	}
	return total, errors.Join(errs...)
}
