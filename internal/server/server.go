package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/iceymoss/go-taskplan/internal/conf"
	"github.com/iceymoss/go-taskplan/internal/engine"
	"github.com/iceymoss/go-taskplan/internal/tasks"
	apperr "github.com/iceymoss/go-taskplan/pkg/errors"
	"github.com/iceymoss/go-taskplan/pkg/logger"
	"github.com/iceymoss/go-taskplan/pkg/xerr"
)

type Server struct {
	engine    *gin.Engine
	scheduler *engine.Scheduler
}

type familyView struct {
	Name    string   `json:"name"`
	Prefix  string   `json:"prefix"`
	Topics  []string `json:"topics"`
	Cleanup string   `json:"cleanup"`
	Doc     string   `json:"doc,omitempty"`
}

type cleanView struct {
	Removed  []string `json:"removed"`
	Missing  []string `json:"missing"`
	Warnings []string `json:"warnings"`
}

func NewServer(cfg *conf.Config, scheduler *engine.Scheduler, planner *tasks.Planner) *Server {
	for _, f := range planner.Registry().List() {
		scheduler.Track(f.Name)
	}

	// 注册所有配置型定时任务
	for _, job := range cfg.Jobs {
		if !job.Enable {
			continue
		}
		if err := scheduler.AddJob(job.Cron, job.Family); err != nil {
			logger.Warn("⚠️ Failed to schedule", zap.String("family", job.Family), zap.Error(err))
		} else {
			logger.Info("✅ Job scheduled", zap.String("family", job.Family), zap.String("cron", job.Cron))
		}
	}

	router := gin.New()
	router.Use(gin.Recovery())

	api := router.Group("/api")
	{
		api.GET("/families", func(c *gin.Context) {
			list := planner.Registry().List()
			views := make([]familyView, 0, len(list))
			for _, f := range list {
				topics := make([]string, 0, len(f.Topics))
				for _, t := range f.Topics {
					topics = append(topics, t.String())
				}
				views = append(views, familyView{
					Name:    f.Name,
					Prefix:  f.Prefix,
					Topics:  topics,
					Cleanup: f.Cleanup.String(),
					Doc:     f.Doc,
				})
			}
			c.JSON(http.StatusOK, gin.H{"data": views})
		})

		api.GET("/plan/:family", func(c *gin.Context) {
			g, err := planner.Graph(c.Param("family"))
			if err != nil {
				abort(c, err)
				return
			}
			c.JSON(http.StatusOK, gin.H{"data": g.Specs()})
		})

		api.GET("/tasks", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"data": scheduler.Stats.GetAll()})
		})

		api.POST("/tasks/:family/run", func(c *gin.Context) {
			if err := scheduler.ManualRun(c.Param("family")); err != nil {
				abort(c, err)
				return
			}
			c.JSON(http.StatusAccepted, gin.H{"message": "Triggered"})
		})

		api.POST("/tasks/:family/clean", func(c *gin.Context) {
			withSources, _ := strconv.ParseBool(c.Query("with_sources"))
			report, err := scheduler.Clean(c.Request.Context(), c.Param("family"), withSources)
			if err != nil {
				abort(c, err)
				return
			}
			view := cleanView{Removed: report.Removed, Missing: report.Missing, Warnings: []string{}}
			for _, w := range report.Warnings {
				view.Warnings = append(view.Warnings, w.Error())
			}
			c.JSON(http.StatusOK, gin.H{"data": view})
		})
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "API not found"})
	})

	return &Server{engine: router, scheduler: scheduler}
}

func abort(c *gin.Context, err error) {
	status := http.StatusBadRequest
	switch apperr.CodeOf(err) {
	case xerr.UNKNOWN_FAMILY:
		status = http.StatusNotFound
	case 0:
		status = http.StatusInternalServerError
	}
	c.JSON(status, gin.H{"error": err.Error(), "code": apperr.CodeOf(err)})
}

// Handler 暴露路由，便于测试
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) Run(addr string) error {
	// 启动任务调度器
	s.scheduler.Start()
	defer s.scheduler.Stop()

	// 启动 web server
	return s.engine.Run(addr)
}
