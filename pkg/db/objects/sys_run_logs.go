package objects

import "time"

// SysRunLog 对应 sys_run_logs 表，每个任务描述每次运行一行
type SysRunLog struct {
	ID         uint   `gorm:"primarykey"`
	RunID      string `gorm:"index;size:36"`
	TaskID     string `gorm:"index;size:255"` // family:name
	Family     string `gorm:"index;size:128"`
	Status     string `gorm:"size:16"` // executed, up-to-date, failed, blocked
	ErrorMsg   string `gorm:"type:text"`
	DurationMs int64
	StartTime  time.Time
	CreatedAt  time.Time
}

func (SysRunLog) TableName() string {
	return "sys_run_logs"
}
