package tasks

import (
	"context"
	"fmt"
	"strings"

	apperr "github.com/iceymoss/go-taskplan/pkg/errors"
	"github.com/iceymoss/go-taskplan/pkg/logger"
	"github.com/iceymoss/go-taskplan/pkg/storage"
	"github.com/iceymoss/go-taskplan/pkg/xerr"

	"github.com/iceymoss/go-taskplan/internal/core"

	"go.uber.org/zap"
)

// ActionFunc 单个动作的执行逻辑
type ActionFunc func(ctx context.Context) error

// Action 任务描述中的一个有序步骤
type Action struct {
	name  string
	topic core.Topic // 非 topic 动作为零值
	run   ActionFunc
}

func (a Action) Name() string { return a.name }

// Topic 返回动作写入的 topic，ok 为 false 表示这是建目录或建文件等动作
func (a Action) Topic() (core.Topic, bool) { return a.topic, a.topic.Valid() }

func (a Action) Run(ctx context.Context) error { return a.run(ctx) }

// CleanupPolicy 清理策略
type CleanupPolicy int

const (
	// CleanupTargetsAndDir 删除所有目标文件，再尝试删除目标目录
	CleanupTargetsAndDir CleanupPolicy = iota
	// CleanupTargets 只删除目标文件
	CleanupTargets
	// CleanupNone 不做任何清理
	CleanupNone
)

func (p CleanupPolicy) String() string {
	switch p {
	case CleanupTargetsAndDir:
		return "targets-and-dir"
	case CleanupTargets:
		return "targets"
	case CleanupNone:
		return "none"
	default:
		return fmt.Sprintf("CleanupPolicy(%d)", int(p))
	}
}

// ParseCleanupPolicy 空字符串按默认策略处理
func ParseCleanupPolicy(s string) (CleanupPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "targets-and-dir", "default":
		return CleanupTargetsAndDir, nil
	case "targets":
		return CleanupTargets, nil
	case "none":
		return CleanupNone, nil
	default:
		return 0, apperr.Newf(xerr.CONFIG_ERROR, "unknown cleanup policy %q", s)
	}
}

// CleanReport 一次清理的结果
type CleanReport struct {
	Removed  []string // 实际删除的文件
	Missing  []string // 本来就不存在的目标
	Warnings []error  // 非致命问题，例如目标目录里残留了其它文件
}

// Merge 把另一份报告追加到当前报告
func (r *CleanReport) Merge(other CleanReport) {
	r.Removed = append(r.Removed, other.Removed...)
	r.Missing = append(r.Missing, other.Missing...)
	r.Warnings = append(r.Warnings, other.Warnings...)
}

type cleanupFunc func(ctx context.Context, report *CleanReport) error

// Descriptor 交给调度方的任务描述，构建完成后不可变
//
// 不变式：Targets 与动作列表写出的文件完全一致，并且顺序与写入动作对齐。
type Descriptor struct {
	family     string
	name       string
	dependency string
	actions    []Action
	targets    []string
	clean      cleanupFunc
}

func (d *Descriptor) Family() string { return d.family }

func (d *Descriptor) Name() string { return d.name }

// ID 在整个计划内唯一：family:name
func (d *Descriptor) ID() string { return d.family + ":" + d.name }

// Dependency 输入依赖路径，为空表示没有依赖
func (d *Descriptor) Dependency() string { return d.dependency }

func (d *Descriptor) Actions() []Action {
	out := make([]Action, len(d.actions))
	copy(out, d.actions)
	return out
}

func (d *Descriptor) Targets() []string {
	out := make([]string, len(d.targets))
	copy(out, d.targets)
	return out
}

// Run 按顺序执行动作，遇到第一个错误即停止并返回
func (d *Descriptor) Run(ctx context.Context) error {
	for _, a := range d.actions {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := a.Run(ctx); err != nil {
			return fmt.Errorf("%s: %s: %w", d.ID(), a.Name(), err)
		}
	}
	return nil
}

// Clean 执行清理。目标文件缺失不算错误；目录因残留文件删不掉时只记入 Warnings。
func (d *Descriptor) Clean(ctx context.Context) (CleanReport, error) {
	var report CleanReport
	if d.clean == nil {
		return report, nil
	}
	err := d.clean(ctx, &report)
	return report, err
}

// DescriptorSpec 用于展示和序列化的任务描述快照
type DescriptorSpec struct {
	ID            string   `json:"id"`
	Family        string   `json:"family"`
	Name          string   `json:"name"`
	Dependency    string   `json:"dependency,omitempty"`
	Actions       []string `json:"actions"`
	Targets       []string `json:"targets"`
	Prerequisites []string `json:"prerequisites,omitempty"`
}

func (d *Descriptor) Spec() DescriptorSpec {
	actions := make([]string, 0, len(d.actions))
	for _, a := range d.actions {
		actions = append(actions, a.Name())
	}
	return DescriptorSpec{
		ID:         d.ID(),
		Family:     d.family,
		Name:       d.name,
		Dependency: d.dependency,
		Actions:    actions,
		Targets:    d.Targets(),
	}
}

func removeTargets(ctx context.Context, store storage.FileStorage, targets []string, report *CleanReport) error {
	for _, target := range targets {
		removed, err := store.RemoveFile(ctx, target)
		if err != nil {
			return err
		}
		if removed {
			report.Removed = append(report.Removed, target)
		} else {
			report.Missing = append(report.Missing, target)
		}
	}
	return nil
}

func removeDirBestEffort(ctx context.Context, tc *TaskContext, id string, report *CleanReport) error {
	err := tc.RemoveTargetDir(ctx)
	if err == nil {
		return nil
	}
	if apperr.IsCode(err, xerr.DIR_NOT_EMPTY) {
		logger.Warn("⚠️ 目标目录中有其他文件，保留目录",
			zap.String("task", id),
			zap.String("dir", tc.TargetDirPath()),
		)
		report.Warnings = append(report.Warnings, err)
		return nil
	}
	return err
}
