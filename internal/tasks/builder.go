package tasks

import (
	"context"
	"path/filepath"

	"github.com/samber/lo"

	"github.com/iceymoss/go-taskplan/internal/core"
	apperr "github.com/iceymoss/go-taskplan/pkg/errors"
	"github.com/iceymoss/go-taskplan/pkg/storage"
	"github.com/iceymoss/go-taskplan/pkg/xerr"
)

// CreateFamily 创建源文件的任务族名
const CreateFamily = "create_file"

const ensureDirAction = "ensure-target-dir"

// ValidateTopics topics 不能为空、不能重复、不能含非法值
func ValidateTopics(topics []core.Topic) error {
	if len(topics) == 0 {
		return apperr.New(xerr.INVALID_TOPICS, "at least one topic is required")
	}
	for _, t := range topics {
		if !t.Valid() {
			return apperr.Newf(xerr.INVALID_TOPICS, "invalid topic %s", t)
		}
	}
	if dups := lo.FindDuplicates(topics); len(dups) > 0 {
		return apperr.Newf(xerr.INVALID_TOPICS, "duplicate topics %v", dups)
	}
	return nil
}

// Build 为一个 TaskContext 组装报告任务描述
//
// 动作列表为 [建目录, topic1, topic2, ...]，Targets 与 topic 一一对应且顺序一致，
// 依赖为源文件路径。Build 本身不接触文件系统。
func Build(tc *TaskContext, family string, topics []core.Topic, policy CleanupPolicy) (*Descriptor, error) {
	if err := ValidateTopics(topics); err != nil {
		return nil, err
	}

	actions := make([]Action, 0, len(topics)+1)
	actions = append(actions, Action{name: ensureDirAction, run: tc.EnsureTargetDir})
	targets := make([]string, 0, len(topics))

	for _, topic := range topics {
		actions = append(actions, Action{
			name:  "write " + topic.FileName(),
			topic: topic,
			run: func(ctx context.Context) error {
				return tc.Write(ctx, topic)
			},
		})
		targets = append(targets, tc.TargetPathFor(topic))
	}

	d := &Descriptor{
		family:     family,
		name:       tc.Source().BaseName(),
		dependency: tc.SourcePath(),
		actions:    actions,
		targets:    targets,
	}

	switch policy {
	case CleanupTargetsAndDir:
		d.clean = func(ctx context.Context, report *CleanReport) error {
			if err := removeTargets(ctx, tc.store, d.targets, report); err != nil {
				return err
			}
			return removeDirBestEffort(ctx, tc, d.ID(), report)
		}
	case CleanupTargets:
		d.clean = func(ctx context.Context, report *CleanReport) error {
			return removeTargets(ctx, tc.store, d.targets, report)
		}
	case CleanupNone:
	default:
		return nil, apperr.Newf(xerr.CONFIG_ERROR, "invalid cleanup policy %s", policy)
	}
	return d, nil
}

// BuildCreate 生成创建源文件的任务描述：写入占位内容，没有依赖，清理即删除该文件。
// 根目录不存在时先创建。
func BuildCreate(store storage.FileStorage, source core.SourceArtifact, content string) *Descriptor {
	path := source.Path()
	d := &Descriptor{
		family: CreateFamily,
		name:   source.Name,
		actions: []Action{{
			name: "write " + filepath.ToSlash(source.Name),
			run: func(ctx context.Context) error {
				if err := store.EnsureDir(ctx, filepath.Dir(path)); err != nil {
					return err
				}
				return store.WriteFile(ctx, path, []byte(content))
			},
		}},
		targets: []string{path},
	}
	d.clean = func(ctx context.Context, report *CleanReport) error {
		return removeTargets(ctx, store, d.targets, report)
	}
	return d
}
