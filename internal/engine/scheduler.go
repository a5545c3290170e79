package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/iceymoss/go-taskplan/internal/tasks"
	"github.com/iceymoss/go-taskplan/pkg/logger"
)

// 触发来源
const (
	SourceCron  = "CRON"
	SourceAPI   = "API"
	SourceCLI   = "CLI"
	SourceWatch = "WATCH"
)

const timeLayout = "2006-01-02 15:04:05"

// GraphBuilder 每次运行前重新生成任务图
type GraphBuilder interface {
	Graph(family string) (*tasks.Graph, error)
}

type Scheduler struct {
	cron    *cron.Cron
	Stats   *StatManager
	runner  *Runner
	builder GraphBuilder
	timeout time.Duration

	mu      sync.Mutex
	running map[string]bool
	entries map[string]cron.EntryID
}

func NewScheduler(runner *Runner, builder GraphBuilder) *Scheduler {
	return &Scheduler{
		cron:    cron.New(cron.WithSeconds()),
		Stats:   NewStatManager(),
		runner:  runner,
		builder: builder,
		timeout: 10 * time.Minute,
		running: make(map[string]bool),
		entries: make(map[string]cron.EntryID),
	}
}

// AddJob 为任务族添加定时运行
func (s *Scheduler) AddJob(cronExpr, family string) error {
	// 先确认任务族可用
	if _, err := s.builder.Graph(family); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[family]; ok {
		return fmt.Errorf("family %q already scheduled", family)
	}

	entryID, err := s.cron.AddFunc(cronExpr, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		if _, err := s.RunNow(ctx, family, SourceCron); err != nil {
			logger.Warn("[Schedule] run skipped", zap.String("family", family), zap.Error(err))
		}
		s.refreshNext(family)
	})
	if err != nil {
		return err
	}
	s.entries[family] = entryID

	s.Stats.Update(family, func(st *JobStats) {
		st.CronExpr = cronExpr
		st.Source = SourceCron
	})
	s.refreshNextLocked(family)
	return nil
}

// Track 登记一个没有定时配置的任务族，使其出现在状态列表里
func (s *Scheduler) Track(family string) {
	s.Stats.Update(family, func(*JobStats) {})
}

func (s *Scheduler) refreshNext(family string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshNextLocked(family)
}

func (s *Scheduler) refreshNextLocked(family string) {
	id, ok := s.entries[family]
	if !ok {
		return
	}
	next := s.cron.Entry(id).Next
	s.Stats.Update(family, func(st *JobStats) {
		st.rawNext = next
		if !next.IsZero() {
			st.NextRunTime = next.Format(timeLayout)
		}
	})
}

// RunNow 同步运行一个任务族。同一任务族正在运行时直接返回错误。
func (s *Scheduler) RunNow(ctx context.Context, family, source string) (*Summary, error) {
	g, err := s.builder.Graph(family)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.running[family] {
		s.mu.Unlock()
		return nil, fmt.Errorf("family %q is already running", family)
	}
	s.running[family] = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.running, family)
		s.mu.Unlock()
	}()

	s.Stats.Update(family, func(st *JobStats) {
		st.Status = "Running"
		st.Source = source
		st.LastRunTime = time.Now().Format(timeLayout)
		st.RunCount++
	})
	logger.Info("🚀 [Schedule] Starting family", zap.String("family", family), zap.String("source", source))

	summary, runErr := s.runner.Run(ctx, g)
	failErr := summary.Err()

	s.Stats.Update(family, func(st *JobStats) {
		st.LastRunID = summary.RunID
		st.Executed = summary.Count(StatusExecuted)
		st.UpToDate = summary.Count(StatusUpToDate)
		st.Failed = summary.Count(StatusFailed) + summary.Count(StatusBlocked)
		switch {
		case runErr != nil:
			st.Status = "Error"
			st.LastResult = fmt.Sprintf("Error: %v", runErr)
		case failErr != nil:
			st.Status = "Error"
			st.LastResult = fmt.Sprintf("Error: %v", failErr)
		default:
			st.Status = "Idle"
			st.LastResult = "Success"
		}
	})

	if runErr != nil {
		logger.Error("❌ [Schedule] Family interrupted", zap.String("family", family), zap.Error(runErr))
		return summary, runErr
	}
	if failErr != nil {
		logger.Error("❌ [Schedule] Family failed", zap.String("family", family), zap.Error(failErr))
	} else {
		logger.Info("✅ [Schedule] Family finished", zap.String("family", family))
	}
	return summary, nil
}

// ManualRun 手动触发，异步执行
func (s *Scheduler) ManualRun(family string) error {
	if _, err := s.builder.Graph(family); err != nil {
		return err
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		if _, err := s.RunNow(ctx, family, SourceAPI); err != nil {
			logger.Warn("[Schedule] manual run failed", zap.String("family", family), zap.Error(err))
		}
	}()
	return nil
}

// Clean 清理任务族生成的文件，withSources 为 true 时连同创建的源文件一起清理
func (s *Scheduler) Clean(ctx context.Context, family string, withSources bool) (tasks.CleanReport, error) {
	g, err := s.builder.Graph(family)
	if err != nil {
		return tasks.CleanReport{}, err
	}
	var targets []*tasks.Descriptor
	if withSources {
		targets = append(targets, g.Family(tasks.CreateFamily)...)
	}
	targets = append(targets, g.Family(family)...)
	return s.runner.Clean(ctx, targets)
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop 停止调度并等待正在执行的定时任务结束
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
