package graph

import "fmt"

// Dependency is one import edge, in source order.
type Dependency struct {
	Specifier string
	Path      string
	// Dynamic marks an import() call, which makes Path an async split point
	Dynamic bool
}

// Module is a single source file in the graph.
type Module struct {
	Path         string
	Source       string
	Dependencies []Dependency
	// ESM marks source written with import or export syntax
	ESM          bool
	Transformed  string
	transformed  bool
}

// Size is the byte size of the transformed source, or of the raw source before
// the transform stage has run.
func (m *Module) Size() int {
	if m.transformed {
		return len(m.Transformed)
	}
	return len(m.Source)
}

// Code returns the source that later stages should emit.
func (m *Module) Code() string {
	if m.transformed {
		return m.Transformed
	}
	return m.Source
}

// IsTransformed reports whether the transform stage produced this module.
func (m *Module) IsTransformed() bool {
	return m.transformed
}

// WithTransformed returns a copy of the module carrying transformed source.
func (m *Module) WithTransformed(code string) *Module {
	c := *m
	c.Dependencies = append([]Dependency(nil), m.Dependencies...)
	c.Transformed = code
	c.transformed = true
	return &c
}

// EntryModule pairs an entry name with its resolved module path.
type EntryModule struct {
	Name string
	Path string
}

// Graph maps module paths to modules. Order holds every path exactly once in
// discovery order: depth-first pre-order from the entries in declared order,
// following dependencies in source order.
type Graph struct {
	Entries []EntryModule
	Order   []string
	modules map[string]*Module
}

// New creates a graph from modules. The discovery order is computed from the
// entries, so the result does not depend on insertion order.
func New(entries []EntryModule, modules map[string]*Module) *Graph {
	g := &Graph{
		Entries: entries,
		modules: modules,
	}
	g.Order = g.discoveryOrder()
	return g
}

// Module returns the module at path.
func (g *Graph) Module(path string) (*Module, bool) {
	m, ok := g.modules[path]
	return m, ok
}

// Len is the number of modules.
func (g *Graph) Len() int {
	return len(g.modules)
}

// Modules returns the modules in discovery order.
func (g *Graph) Modules() []*Module {
	out := make([]*Module, 0, len(g.Order))
	for _, p := range g.Order {
		out = append(out, g.modules[p])
	}
	return out
}

// WithTransformed returns a new graph where each module with an entry in code
// carries that transformed source. Modules without an entry are shared with
// the receiver.
func (g *Graph) WithTransformed(code map[string]string) (*Graph, error) {
	modules := make(map[string]*Module, len(g.modules))
	for p, m := range g.modules {
		src, ok := code[p]
		if !ok {
			modules[p] = m
			continue
		}
		modules[p] = m.WithTransformed(src)
	}

	for p := range code {
		if _, ok := g.modules[p]; !ok {
			return nil, fmt.Errorf("transformed source for unknown module %s", p)
		}
	}

	return &Graph{
		Entries: g.Entries,
		Order:   g.Order,
		modules: modules,
	}, nil
}

// Reachable returns the modules reachable from root in discovery order. When
// static is true dynamic edges are not followed.
func (g *Graph) Reachable(root string, static bool) []string {
	visited := make(map[string]bool)
	var out []string

	var visit func(p string)
	visit = func(p string) {
		if visited[p] {
			return
		}
		m, ok := g.modules[p]
		if !ok {
			return
		}
		visited[p] = true
		out = append(out, p)
		for _, d := range m.Dependencies {
			if static && d.Dynamic {
				continue
			}
			visit(d.Path)
		}
	}
	visit(root)

	return out
}

func (g *Graph) discoveryOrder() []string {
	visited := make(map[string]bool, len(g.modules))
	order := make([]string, 0, len(g.modules))

	var visit func(p string)
	visit = func(p string) {
		if visited[p] {
			return
		}
		m, ok := g.modules[p]
		if !ok {
			return
		}
		visited[p] = true
		order = append(order, p)
		for _, d := range m.Dependencies {
			visit(d.Path)
		}
	}

	for _, e := range g.Entries {
		visit(e.Path)
	}

	return order
}
