package tasks

import (
	"path/filepath"
	"strings"

	"github.com/samber/lo"

	"github.com/iceymoss/go-taskplan/internal/core"
	apperr "github.com/iceymoss/go-taskplan/pkg/errors"
	"github.com/iceymoss/go-taskplan/pkg/storage"
	"github.com/iceymoss/go-taskplan/pkg/xerr"
)

// Entry 计划中的一个源文件及其占位内容
type Entry struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// Plan 固定的源文件清单，创建后不可变
type Plan struct {
	entries []Entry
}

// NewPlan 文件名必须非空、不含路径分隔符且互不重复
func NewPlan(entries ...Entry) (Plan, error) {
	if len(entries) == 0 {
		return Plan{}, apperr.New(xerr.CONFIG_ERROR, "plan has no entries")
	}
	for _, e := range entries {
		if e.Name == "" || e.Name == "." || e.Name == ".." {
			return Plan{}, apperr.Newf(xerr.CONFIG_ERROR, "invalid plan entry name %q", e.Name)
		}
		if strings.ContainsAny(e.Name, `/\`) || filepath.Base(e.Name) != e.Name {
			return Plan{}, apperr.Newf(xerr.CONFIG_ERROR, "plan entry %q must be a base name", e.Name)
		}
	}
	if dups := lo.FindDuplicates(lo.Map(entries, func(e Entry, _ int) string { return e.Name })); len(dups) > 0 {
		return Plan{}, apperr.Newf(xerr.CONFIG_ERROR, "duplicate plan entries %v", dups)
	}
	return Plan{entries: append([]Entry(nil), entries...)}, nil
}

// DefaultPlan 内置的两个示例文件
func DefaultPlan() Plan {
	return Plan{entries: []Entry{
		{Name: "alfa.txt", Content: "you are alfa"},
		{Name: "beta.txt", Content: "you are BETA"},
	}}
}

func (p Plan) Entries() []Entry {
	return append([]Entry(nil), p.entries...)
}

func (p Plan) Len() int { return len(p.entries) }

// Generator 根据计划和任务族生成任务描述
type Generator struct {
	plan     Plan
	root     string
	priority int
	store    storage.FileStorage
}

// NewGenerator root 为源文件和报告目录所在的根目录
func NewGenerator(plan Plan, root string, priority int, store storage.FileStorage) *Generator {
	if root == "" {
		root = "."
	}
	return &Generator{
		plan:     plan,
		root:     filepath.Clean(root),
		priority: priority,
		store:    store,
	}
}

func (g *Generator) Root() string { return g.root }

func (g *Generator) Plan() Plan { return g.plan }

func (g *Generator) source(e Entry) core.SourceArtifact {
	return core.SourceArtifact{Root: g.root, Name: e.Name}
}

// CreateDescriptors 每个计划条目一个创建任务
func (g *Generator) CreateDescriptors() []*Descriptor {
	out := make([]*Descriptor, 0, g.plan.Len())
	for _, e := range g.plan.entries {
		out = append(out, BuildCreate(g.store, g.source(e), e.Content))
	}
	return out
}

// FamilyDescriptors 每个计划条目恰好一个报告任务，任务名为文件名
func (g *Generator) FamilyDescriptors(f Family) ([]*Descriptor, error) {
	out := make([]*Descriptor, 0, g.plan.Len())
	for _, e := range g.plan.entries {
		tc := NewTaskContext(g.source(e), f.Prefix, g.priority, g.store)
		d, err := Build(tc, f.Name, f.Topics, f.Cleanup)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// Generate 生成包含创建任务和给定任务族报告任务的任务图。
// 每个报告任务依赖同一源文件的创建任务，关系显式写入图里。
func (g *Generator) Generate(families ...Family) (*Graph, error) {
	creates := g.CreateDescriptors()
	all := append([]*Descriptor(nil), creates...)
	prereqs := make(map[string][]string)

	for _, f := range families {
		reports, err := g.FamilyDescriptors(f)
		if err != nil {
			return nil, err
		}
		for i, d := range reports {
			create := creates[i]
			if create.Targets()[0] != d.Dependency() {
				return nil, apperr.Newf(xerr.INVALID_GRAPH, "%s depends on %q but %s creates %q",
					d.ID(), d.Dependency(), create.ID(), create.Targets()[0])
			}
			prereqs[d.ID()] = []string{create.ID()}
		}
		all = append(all, reports...)
	}
	return NewGraph(all, prereqs)
}
