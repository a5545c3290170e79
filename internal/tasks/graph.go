package tasks

import (
	"sort"

	apperr "github.com/iceymoss/go-taskplan/pkg/errors"
	"github.com/iceymoss/go-taskplan/pkg/xerr"
)

// Graph 任务描述及其前置关系，构造时完成校验，之后只读
//
// 可以并发读取。
type Graph struct {
	nodes   []*Descriptor // 插入顺序
	byID    map[string]int
	prereqs [][]int // 按下标，升序
	layers  [][]int // 拓扑分层，同层互不依赖
}

// NewGraph 构建并校验任务图，拒绝：
//   - 空图、重复 ID
//   - 两个描述声明同一个目标文件
//   - 引用未知描述、自环、重复边
//   - 任意环
func NewGraph(descriptors []*Descriptor, prereqs map[string][]string) (*Graph, error) {
	if len(descriptors) == 0 {
		return nil, apperr.New(xerr.INVALID_GRAPH, "no descriptors")
	}

	g := &Graph{
		nodes:   make([]*Descriptor, 0, len(descriptors)),
		byID:    make(map[string]int, len(descriptors)),
		prereqs: make([][]int, len(descriptors)),
	}
	owner := make(map[string]string)
	for _, d := range descriptors {
		id := d.ID()
		if _, exists := g.byID[id]; exists {
			return nil, apperr.Newf(xerr.INVALID_GRAPH, "duplicate descriptor %q", id)
		}
		for _, target := range d.targets {
			if other, taken := owner[target]; taken {
				return nil, apperr.Newf(xerr.INVALID_GRAPH, "target %q declared by both %q and %q", target, other, id)
			}
			owner[target] = id
		}
		g.byID[id] = len(g.nodes)
		g.nodes = append(g.nodes, d)
	}

	for id, deps := range prereqs {
		to, ok := g.byID[id]
		if !ok {
			return nil, apperr.Newf(xerr.INVALID_GRAPH, "prerequisites for unknown descriptor %q", id)
		}
		seen := make(map[int]struct{}, len(deps))
		for _, dep := range deps {
			from, ok := g.byID[dep]
			if !ok {
				return nil, apperr.Newf(xerr.INVALID_GRAPH, "%q requires unknown descriptor %q", id, dep)
			}
			if from == to {
				return nil, apperr.Newf(xerr.INVALID_GRAPH, "self-loop on %q", id)
			}
			if _, dup := seen[from]; dup {
				return nil, apperr.Newf(xerr.INVALID_GRAPH, "duplicate prerequisite %q -> %q", dep, id)
			}
			seen[from] = struct{}{}
			g.prereqs[to] = append(g.prereqs[to], from)
		}
		sort.Ints(g.prereqs[to])
	}

	layers, err := g.computeLayers()
	if err != nil {
		return nil, err
	}
	g.layers = layers
	return g, nil
}

// computeLayers Kahn 算法分层，层内保持插入顺序
func (g *Graph) computeLayers() ([][]int, error) {
	n := len(g.nodes)
	indeg := make([]int, n)
	outgoing := make([][]int, n)
	for to, froms := range g.prereqs {
		indeg[to] = len(froms)
		for _, from := range froms {
			outgoing[from] = append(outgoing[from], to)
		}
	}

	var current []int
	for i := 0; i < n; i++ {
		if indeg[i] == 0 {
			current = append(current, i)
		}
	}

	var layers [][]int
	visited := 0
	for len(current) > 0 {
		layers = append(layers, current)
		visited += len(current)
		var next []int
		for _, u := range current {
			for _, v := range outgoing[u] {
				indeg[v]--
				if indeg[v] == 0 {
					next = append(next, v)
				}
			}
		}
		sort.Ints(next)
		current = next
	}

	if visited != n {
		var stuck []string
		for i := 0; i < n; i++ {
			if indeg[i] > 0 {
				stuck = append(stuck, g.nodes[i].ID())
			}
		}
		return nil, apperr.Newf(xerr.INVALID_GRAPH, "cycle among %v", stuck)
	}
	return layers, nil
}

func (g *Graph) Len() int { return len(g.nodes) }

// Descriptors 按插入顺序返回
func (g *Graph) Descriptors() []*Descriptor {
	out := make([]*Descriptor, len(g.nodes))
	copy(out, g.nodes)
	return out
}

func (g *Graph) Descriptor(id string) (*Descriptor, bool) {
	i, ok := g.byID[id]
	if !ok {
		return nil, false
	}
	return g.nodes[i], true
}

// Prerequisites 返回必须先完成的描述 ID
func (g *Graph) Prerequisites(id string) []string {
	i, ok := g.byID[id]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(g.prereqs[i]))
	for _, p := range g.prereqs[i] {
		out = append(out, g.nodes[p].ID())
	}
	return out
}

// Layers 拓扑分层，前一层全部完成后下一层才可执行
func (g *Graph) Layers() [][]*Descriptor {
	out := make([][]*Descriptor, 0, len(g.layers))
	for _, layer := range g.layers {
		ds := make([]*Descriptor, 0, len(layer))
		for _, i := range layer {
			ds = append(ds, g.nodes[i])
		}
		out = append(out, ds)
	}
	return out
}

// TopologicalOrder 确定性的拓扑序
func (g *Graph) TopologicalOrder() []string {
	ids := make([]string, 0, len(g.nodes))
	for _, layer := range g.layers {
		for _, i := range layer {
			ids = append(ids, g.nodes[i].ID())
		}
	}
	return ids
}

// Family 返回某个任务族的描述，按插入顺序
func (g *Graph) Family(name string) []*Descriptor {
	var out []*Descriptor
	for _, d := range g.nodes {
		if d.family == name {
			out = append(out, d)
		}
	}
	return out
}

// Specs 按拓扑序导出所有描述，附带前置关系
func (g *Graph) Specs() []DescriptorSpec {
	specs := make([]DescriptorSpec, 0, len(g.nodes))
	for _, id := range g.TopologicalOrder() {
		d, _ := g.Descriptor(id)
		spec := d.Spec()
		spec.Prerequisites = g.Prerequisites(id)
		specs = append(specs, spec)
	}
	return specs
}
