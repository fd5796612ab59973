package chunk

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/rnbundle/internal/config"
	"github.com/wolfeidau/rnbundle/internal/graph"
)

// Splitter partitions a graph according to a chunking policy. It is a barrier
// stage and runs single threaded over the whole graph.
type Splitter struct {
	policy config.Policy
}

// NewSplitter creates a splitter for the policy.
func NewSplitter(policy config.Policy) *Splitter {
	return &Splitter{policy: policy}
}

// plan is the working state of one Split call.
type plan struct {
	g      *graph.Graph
	policy config.Policy
	delim  string

	points []point
	// closures holds each split point's static closure in discovery order
	closures [][]string
	// requesters maps a module to the ascending indexes of the split points
	// whose static closure contains it; the first one is its origin.
	requesters map[string][]int
	roots      map[string]int

	// owner records modules taken out of their originating chunk
	owner  map[string]string
	groups []*Chunk
}

// Split computes the partition. The result only depends on the graph and the
// policy: every iteration follows graph discovery order or declaration order.
func (s *Splitter) Split(ctx context.Context, g *graph.Graph) (*Partition, error) {
	logger := zerolog.Ctx(ctx)

	p := &plan{
		g:          g,
		policy:     s.policy,
		delim:      s.policy.AutomaticNameDelimiter,
		requesters: make(map[string][]int),
		roots:      make(map[string]int),
		owner:      make(map[string]string),
	}
	if p.delim == "" {
		p.delim = "~"
	}

	p.points = discoverSplitPoints(g, p.delim)
	for i, sp := range p.points {
		p.roots[sp.root] = i
		closure := g.Reachable(sp.root, true)
		p.closures = append(p.closures, closure)
		for _, m := range closure {
			p.requesters[m] = append(p.requesters[m], i)
		}
	}

	for _, cg := range p.orderedGroups() {
		p.applyGroup(ctx, cg)
	}

	if s.policy.MaxSize > 0 {
		p.subdivide(s.policy.MaxSize)
	}

	p.enforceRequestCaps(ctx)

	partition, err := p.partition()
	if err != nil {
		return nil, err
	}

	logger.Info().
		Int("modules", g.Len()).
		Int("chunks", len(partition.Chunks)).
		Int("split_points", len(partition.SplitPoints)).
		Msg("Split modules into chunks")

	return partition, nil
}

// orderedGroups sorts cache groups by descending priority, declaration order
// breaking ties.
func (p *plan) orderedGroups() []config.CacheGroup {
	groups := slices.Clone(p.policy.CacheGroups)
	slices.SortStableFunc(groups, func(a, b config.CacheGroup) int {
		return b.Priority - a.Priority
	})
	return groups
}

func (p *plan) applyGroup(ctx context.Context, cg config.CacheGroup) {
	logger := zerolog.Ctx(ctx)

	kind := cg.Chunks
	if kind == "" {
		kind = p.policy.Chunks
	}

	minChunks := cg.MinChunks
	if minChunks == 0 {
		minChunks = p.policy.MinChunks
		if cg.Enforce {
			minChunks = 1
		}
	}

	minSize := p.policy.MinSize
	if cg.MinSize != nil {
		minSize = *cg.MinSize
	}
	if cg.Enforce {
		minSize = 0
	}

	var candidates []*Chunk
	byName := make(map[string]*Chunk)

	for _, path := range p.g.Order {
		if !p.eligible(path) || !matches(cg.Test, path) {
			continue
		}

		reqs := p.qualifying(path, kind)
		if len(reqs) == 0 || len(reqs) < minChunks {
			continue
		}

		name := cg.Name
		if name == "" {
			parts := []string{cg.Key}
			for _, i := range reqs {
				parts = append(parts, p.points[i].name)
			}
			name = strings.Join(parts, p.delim)
		}

		c, ok := byName[name]
		if !ok {
			c = &Chunk{
				Name:     name,
				Origin:   name,
				Kind:     KindGroup,
				Priority: cg.Priority,
				Class:    cg.Class,
				Enforced: cg.Enforce,
			}
			byName[name] = c
			candidates = append(candidates, c)
		}
		c.Modules = append(c.Modules, path)
		c.Size += p.size(path)
	}

	for _, c := range candidates {
		if c.Size < minSize {
			logger.Debug().
				Str("group", cg.Key).
				Str("chunk", c.Name).
				Int("size", c.Size).
				Int("min_size", minSize).
				Msg("Group chunk below minimum size")
			continue
		}

		if cg.ReuseExistingChunk {
			if base, ok := p.reusable(c); ok {
				logger.Debug().
					Str("group", cg.Key).
					Str("chunk", base).
					Msg("Reusing existing chunk")
				for _, m := range c.Modules {
					p.owner[m] = base
				}
				continue
			}
		}

		for _, m := range c.Modules {
			p.owner[m] = c.Name
		}
		p.groups = append(p.groups, c)
	}
}

// eligible reports whether a module can still be taken by a cache group.
// Entry modules always stay in their entry chunk.
func (p *plan) eligible(path string) bool {
	if _, taken := p.owner[path]; taken {
		return false
	}
	if i, ok := p.roots[path]; ok && p.points[i].initial {
		return false
	}
	return true
}

// qualifying returns the requesters of a module whose kind passes the chunks
// filter.
func (p *plan) qualifying(path string, kind config.Chunks) []int {
	var out []int
	for _, i := range p.requesters[path] {
		switch {
		case kind == config.ChunksInitial && !p.points[i].initial:
		case kind == config.ChunksAsync && p.points[i].initial:
		default:
			out = append(out, i)
		}
	}
	return out
}

// reusable reports the base chunk whose remaining modules are exactly the
// modules of c.
func (p *plan) reusable(c *Chunk) (string, bool) {
	origin := p.origin(c.Modules[0])
	for _, m := range c.Modules[1:] {
		if p.origin(m) != origin {
			return "", false
		}
	}

	members := make(map[string]bool, len(c.Modules))
	for _, m := range c.Modules {
		members[m] = true
	}

	for _, m := range p.closures[origin] {
		if p.origin(m) != origin {
			continue
		}
		if _, taken := p.owner[m]; taken {
			continue
		}
		if !members[m] {
			return "", false
		}
	}

	return p.points[origin].name, true
}

// subdivide splits group chunks larger than maxSize into parts, preserving
// module order and never splitting a module.
func (p *plan) subdivide(maxSize int) {
	var out []*Chunk
	for _, c := range p.groups {
		if c.Size <= maxSize || len(c.Modules) < 2 {
			out = append(out, c)
			continue
		}

		var parts []*Chunk
		var cur *Chunk
		for _, m := range c.Modules {
			size := p.size(m)
			if cur == nil || (len(cur.Modules) > 0 && cur.Size+size > maxSize) {
				cur = &Chunk{
					Origin:   c.Origin,
					Kind:     c.Kind,
					Priority: c.Priority,
					Class:    c.Class,
					Enforced: c.Enforced,
				}
				parts = append(parts, cur)
			}
			cur.Modules = append(cur.Modules, m)
			cur.Size += size
		}

		for i, part := range parts {
			part.Name = fmt.Sprintf("%s%s%d", c.Origin, p.delim, i+1)
			for _, m := range part.Modules {
				p.owner[m] = part.Name
			}
		}
		out = append(out, parts...)
	}
	p.groups = out
}

func (p *plan) origin(path string) int {
	return p.requesters[path][0]
}

func (p *plan) size(path string) int {
	m, ok := p.g.Module(path)
	if !ok {
		return 0
	}
	return m.Size()
}

// chunkOf is the chunk a module currently belongs to.
func (p *plan) chunkOf(path string) string {
	if name, ok := p.owner[path]; ok {
		return name
	}
	return p.points[p.origin(path)].name
}

func (p *plan) partition() (*Partition, error) {
	var chunks []*Chunk
	names := make(map[string]bool)
	add := func(c *Chunk) error {
		if names[c.Name] {
			return fmt.Errorf("%w: %s", ErrDuplicateChunk, c.Name)
		}
		names[c.Name] = true
		chunks = append(chunks, c)
		return nil
	}

	runtimes := make(map[int]string)
	switch p.policy.RuntimeChunk {
	case config.RuntimeSingle:
		if err := add(&Chunk{Name: "runtime", Origin: "runtime", Kind: KindRuntime}); err != nil {
			return nil, err
		}
		for i, sp := range p.points {
			if sp.initial {
				runtimes[i] = "runtime"
			}
		}
	case config.RuntimeMultiple:
		for i, sp := range p.points {
			if !sp.initial {
				continue
			}
			name := "runtime" + p.delim + sp.name
			if err := add(&Chunk{Name: name, Origin: name, Kind: KindRuntime}); err != nil {
				return nil, err
			}
			runtimes[i] = name
		}
	}

	for _, c := range p.groups {
		if err := add(c); err != nil {
			return nil, err
		}
	}

	base := make([]*Chunk, len(p.points))
	for i, sp := range p.points {
		base[i] = &Chunk{
			Name:   sp.name,
			Origin: sp.name,
			Kind:   KindAsync,
			Class:  "default",
		}
		if sp.initial {
			base[i].Kind = KindEntry
		}
	}
	baseByName := make(map[string]*Chunk, len(base))
	for _, c := range base {
		baseByName[c.Name] = c
	}
	// reused chunks appear in owner under their base chunk name
	for _, path := range p.g.Order {
		c, ok := baseByName[p.chunkOf(path)]
		if !ok {
			continue
		}
		c.Modules = append(c.Modules, path)
		c.Size += p.size(path)
	}
	for i, c := range base {
		if len(c.Modules) == 0 && !p.points[i].initial {
			continue
		}
		if err := add(c); err != nil {
			return nil, err
		}
	}

	order := make(map[string]int, len(chunks))
	for i, c := range chunks {
		order[c.Name] = i
	}

	points := make([]SplitPoint, 0, len(p.points))
	for i, sp := range p.points {
		needed := make(map[string]bool)
		for _, m := range p.closures[i] {
			needed[p.chunkOf(m)] = true
		}

		var load []string
		if rt, ok := runtimes[i]; ok {
			load = append(load, rt)
		}
		var rest []string
		for name := range needed {
			rest = append(rest, name)
		}
		slices.SortFunc(rest, func(a, b string) int {
			return order[a] - order[b]
		})
		load = append(load, rest...)

		points = append(points, SplitPoint{
			Name:    sp.name,
			Root:    sp.root,
			Initial: sp.initial,
			Runtime: runtimes[i],
			Chunks:  load,
		})
	}

	return newPartition(chunks, points), nil
}

// matches reports whether the slash-normalised path contains any pattern. An
// empty pattern list matches everything.
func matches(patterns []string, path string) bool {
	if len(patterns) == 0 {
		return true
	}
	slash := filepath.ToSlash(path)
	for _, pattern := range patterns {
		if strings.Contains(slash, pattern) {
			return true
		}
	}
	return false
}
