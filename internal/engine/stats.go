package engine

import (
	"sort"
	"sync"
	"time"
)

// JobStats 任务族的运行时状态
type JobStats struct {
	Name        string    `json:"name"`
	CronExpr    string    `json:"cron_expr"`
	Status      string    `json:"status"`      // Idle, Running, Error
	LastRunTime string    `json:"last_run"`    // 格式化后的时间
	NextRunTime string    `json:"next_run"`    // 格式化后的时间
	LastResult  string    `json:"last_result"` // 成功或错误信息
	LastRunID   string    `json:"last_run_id"`
	RunCount    int64     `json:"run_count"`
	Executed    int       `json:"executed"`   // 上次运行实际执行的任务数
	UpToDate    int       `json:"up_to_date"` // 上次运行跳过的任务数
	Failed      int       `json:"failed"`
	rawNext     time.Time // 用于内部计算
	Source      string    `json:"source"` // 最近一次触发来源 (例如: "CRON", "API", "CLI")
}

type StatManager struct {
	stats map[string]*JobStats
	mu    sync.RWMutex
}

func NewStatManager() *StatManager {
	return &StatManager{
		stats: make(map[string]*JobStats),
	}
}

func (m *StatManager) Set(name string, stat *JobStats) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats[name] = stat
}

// Update 在锁内修改状态，不存在时先创建
func (m *StatManager) Update(name string, fn func(s *JobStats)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.stats[name]
	if !ok {
		s = &JobStats{Name: name, Status: "Idle", LastResult: "Pending"}
		m.stats[name] = s
	}
	fn(s)
}

// Get 返回状态副本
func (m *StatManager) Get(name string) (JobStats, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.stats[name]
	if !ok {
		return JobStats{}, false
	}
	return *s, true
}

func (m *StatManager) GetAll() []JobStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := make([]JobStats, 0, len(m.stats))
	for _, s := range m.stats {
		list = append(list, *s)
	}
	// 按名称排序
	sort.Slice(list, func(i, j int) bool {
		return list[i].Name < list[j].Name
	})
	return list
}
