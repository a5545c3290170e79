package main

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/iceymoss/go-taskplan/internal/conf"
	"github.com/iceymoss/go-taskplan/internal/engine"
	"github.com/iceymoss/go-taskplan/internal/repo"
	"github.com/iceymoss/go-taskplan/internal/tasks"
	"github.com/iceymoss/go-taskplan/pkg/db"
	"github.com/iceymoss/go-taskplan/pkg/logger"
	"github.com/iceymoss/go-taskplan/pkg/storage"
)

// app 命令共用的依赖
type app struct {
	cfg     *conf.Config
	planner *tasks.Planner
	runner  *engine.Runner
	sched   *engine.Scheduler
}

func newApp(cmd *cobra.Command, opts ...engine.Option) (*app, error) {
	flags := cmd.Flags()
	path, _ := flags.GetString("config")
	cfg, err := conf.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	if root, _ := flags.GetString("root"); root != "" {
		cfg.Root = root
	}
	if workers, _ := flags.GetInt("workers"); workers > 0 {
		cfg.Workers = workers
	}
	if flags.Changed("log") {
		lvl, _ := flags.GetString("log")
		logger.SetLevel(lvl)
	} else {
		logger.SetLevel(cfg.Log.Level)
	}

	plan, err := cfg.BuildPlan()
	if err != nil {
		return nil, err
	}
	reg, err := cfg.BuildRegistry()
	if err != nil {
		return nil, err
	}

	store := storage.NewLocalStorage()
	planner := tasks.NewPlanner(tasks.NewGenerator(plan, cfg.Root, cfg.Priority, store), reg)

	opts = append([]engine.Option{engine.WithWorkers(cfg.Workers)}, opts...)
	if cfg.History.Enable {
		history, err := openHistory(cmd.Context(), cfg.History)
		if err != nil {
			return nil, err
		}
		opts = append(opts, engine.WithHistory(history))
	}
	runner := engine.NewRunner(store, opts...)

	logger.Debug("配置加载完成",
		zap.String("root", cfg.Root),
		zap.Int("priority", cfg.Priority),
		zap.Int("entries", plan.Len()),
	)
	return &app{
		cfg:     cfg,
		planner: planner,
		runner:  runner,
		sched:   engine.NewScheduler(runner, planner),
	}, nil
}

func openHistory(ctx context.Context, hc conf.HistoryConfig) (*repo.RunRepo, error) {
	conn, err := db.Open(hc.Driver, hc.DSN)
	if err != nil {
		return nil, err
	}
	r := repo.NewRunRepo(conn)
	if err := r.Migrate(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

// sources 计划中所有源文件路径
func (a *app) sources() []string {
	gen := a.planner.Generator()
	var out []string
	for _, d := range gen.CreateDescriptors() {
		out = append(out, d.Targets()...)
	}
	return out
}
