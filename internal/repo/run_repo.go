package repo

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/iceymoss/go-taskplan/internal/engine"
	"github.com/iceymoss/go-taskplan/pkg/db/objects"
)

// RunRepo 运行记录仓库，实现 engine.HistoryRecorder
type RunRepo struct {
	db *gorm.DB
}

var _ engine.HistoryRecorder = (*RunRepo)(nil)

func NewRunRepo(db *gorm.DB) *RunRepo { return &RunRepo{db: db} }

// Migrate 建表
func (r *RunRepo) Migrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&objects.SysRunLog{})
}

// Record 写入一条执行记录
func (r *RunRepo) Record(ctx context.Context, runID string, res engine.Result) error {
	row := ToRow(runID, res)
	return r.db.WithContext(ctx).Create(&row).Error
}

// ListRuns 按时间倒序查询某个任务族的执行记录，family 为空时查询全部
func (r *RunRepo) ListRuns(ctx context.Context, family string, limit int) ([]*objects.SysRunLog, error) {
	var list []*objects.SysRunLog
	q := r.db.WithContext(ctx).Order("id DESC")
	if family != "" {
		q = q.Where("family = ?", family)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&list).Error
	return list, err
}

// ToRow 把执行结果转换为表记录
func ToRow(runID string, res engine.Result) objects.SysRunLog {
	family, _, _ := strings.Cut(res.ID, ":")
	return objects.SysRunLog{
		RunID:      runID,
		TaskID:     res.ID,
		Family:     family,
		Status:     string(res.Status),
		ErrorMsg:   res.Error,
		DurationMs: res.Duration.Milliseconds(),
		StartTime:  res.Started,
	}
}
