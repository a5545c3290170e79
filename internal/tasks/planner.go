package tasks

// Planner 把任务族注册表和生成器组合起来，按任务族名重新生成任务图
type Planner struct {
	gen *Generator
	reg *Registry
}

func NewPlanner(gen *Generator, reg *Registry) *Planner {
	return &Planner{gen: gen, reg: reg}
}

func (p *Planner) Generator() *Generator { return p.gen }

func (p *Planner) Registry() *Registry { return p.reg }

// Graph 每次调用都重新生成，调度方不需要缓存任务描述
func (p *Planner) Graph(family string) (*Graph, error) {
	f, err := p.reg.Get(family)
	if err != nil {
		return nil, err
	}
	return p.gen.Generate(f)
}

// GraphAll 合并多个任务族，创建任务只出现一次
func (p *Planner) GraphAll(families ...string) (*Graph, error) {
	list := make([]Family, 0, len(families))
	for _, name := range families {
		f, err := p.reg.Get(name)
		if err != nil {
			return nil, err
		}
		list = append(list, f)
	}
	return p.gen.Generate(list...)
}
