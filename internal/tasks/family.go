package tasks

import (
	"sync"

	"github.com/iceymoss/go-taskplan/internal/core"
	apperr "github.com/iceymoss/go-taskplan/pkg/errors"
	"github.com/iceymoss/go-taskplan/pkg/xerr"
)

// Family 一组共享 topic 子集和目录前缀的报告任务
type Family struct {
	Name    string
	Prefix  string
	Topics  []core.Topic
	Cleanup CleanupPolicy
	Doc     string
}

// DefaultFamilies 内置的三个报告任务族
func DefaultFamilies() []Family {
	return []Family{
		{
			Name:   "report_file_size",
			Prefix: "report_file_size_",
			Topics: []core.Topic{core.TopicSize},
			Doc:    "Report file size by JSON file in report directory.",
		},
		{
			Name:   "report_file_mtime",
			Prefix: "report_file_mtime_",
			Topics: []core.Topic{core.TopicMtime},
			Doc:    "Report file mtime by JSON file in report directory.",
		},
		{
			Name:   "report_file_complete",
			Prefix: "report_file_complete_",
			Topics: []core.Topic{core.TopicSize, core.TopicMtime, core.TopicAllData},
			Doc:    "Report multiple file parameters into set of JSON files in report dir.",
		},
	}
}

// Registry 任务族注册表，按注册顺序列出
type Registry struct {
	mu       sync.RWMutex
	families map[string]Family
	order    []string
}

func NewRegistry(families ...Family) (*Registry, error) {
	r := &Registry{families: make(map[string]Family)}
	for _, f := range families {
		if err := r.Register(f); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register 校验并登记一个任务族。前缀不能与已有任务族重复，避免两个族写到同一目录。
func (r *Registry) Register(f Family) error {
	if f.Name == "" {
		return apperr.New(xerr.CONFIG_ERROR, "family name is required")
	}
	if f.Name == CreateFamily {
		return apperr.Newf(xerr.CONFIG_ERROR, "family name %q is reserved", f.Name)
	}
	if f.Prefix == "" {
		return apperr.Newf(xerr.CONFIG_ERROR, "family %q: prefix is required", f.Name)
	}
	if err := ValidateTopics(f.Topics); err != nil {
		return apperr.Wrap(xerr.INVALID_TOPICS, "family "+f.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.families[f.Name]; ok {
		return apperr.Newf(xerr.CONFIG_ERROR, "family %q registered twice", f.Name)
	}
	for _, existing := range r.families {
		if existing.Prefix == f.Prefix {
			return apperr.Newf(xerr.CONFIG_ERROR, "family %q reuses prefix %q of %q", f.Name, f.Prefix, existing.Name)
		}
	}

	f.Topics = append([]core.Topic(nil), f.Topics...)
	r.families[f.Name] = f
	r.order = append(r.order, f.Name)
	return nil
}

// Get 按名称查找任务族
func (r *Registry) Get(name string) (Family, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.families[name]
	if !ok {
		return Family{}, apperr.Newf(xerr.UNKNOWN_FAMILY, "task family %q not found", name)
	}
	f.Topics = append([]core.Topic(nil), f.Topics...)
	return f, nil
}

func (r *Registry) List() []Family {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := make([]Family, 0, len(r.order))
	for _, name := range r.order {
		f := r.families[name]
		f.Topics = append([]core.Topic(nil), f.Topics...)
		list = append(list, f)
	}
	return list
}
