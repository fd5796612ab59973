// Package chunk partitions a module graph into output chunks.
package chunk

import "errors"

// ErrDuplicateChunk indicates two chunks were given the same name
var ErrDuplicateChunk = errors.New("duplicate chunk name")

// Kind describes why a chunk exists.
type Kind string

const (
	// KindRuntime chunks carry the module runtime and no modules
	KindRuntime Kind = "runtime"
	// KindGroup chunks are produced by a cache group
	KindGroup Kind = "group"
	// KindEntry chunks hold the modules originating from an entry point
	KindEntry Kind = "entry"
	// KindAsync chunks hold the modules originating from a dynamic import target
	KindAsync Kind = "async"
)

// Chunk is a named ordered set of modules emitted as one artifact.
type Chunk struct {
	Name string
	// Origin is the name the chunk had before maxSize subdivision, equal to
	// Name when it was not subdivided.
	Origin   string
	Kind     Kind
	Priority int
	// Class is the size-budget classification (polyfill, vendor, common or default)
	Class    string
	Enforced bool
	// Modules are module paths in graph discovery order
	Modules []string
	Size    int
}

// SplitPoint is a place execution can start: an entry or the target of a
// dynamic import.
type SplitPoint struct {
	// Name is the name of the split point's own chunk
	Name    string
	Root    string
	Initial bool
	// Runtime names the runtime chunk an entry depends on, empty when the
	// runtime is inlined or for async split points.
	Runtime string
	// Chunks lists every chunk that must be loaded before Root can run, in
	// load order.
	Chunks []string
}

// Partition is the splitter's result. Every module of the graph belongs to
// exactly one chunk.
type Partition struct {
	Chunks      []*Chunk
	SplitPoints []SplitPoint

	byName map[string]*Chunk
	owner  map[string]string
	points map[string]int
}

func newPartition(chunks []*Chunk, points []SplitPoint) *Partition {
	p := &Partition{
		Chunks:      chunks,
		SplitPoints: points,
		byName:      make(map[string]*Chunk, len(chunks)),
		owner:       make(map[string]string),
		points:      make(map[string]int, len(points)),
	}
	for _, c := range chunks {
		p.byName[c.Name] = c
		for _, m := range c.Modules {
			p.owner[m] = c.Name
		}
	}
	for i, sp := range points {
		p.points[sp.Root] = i
	}
	return p
}

// Chunk returns the chunk called name.
func (p *Partition) Chunk(name string) (*Chunk, bool) {
	c, ok := p.byName[name]
	return c, ok
}

// ChunkOf returns the name of the chunk holding the module at path.
func (p *Partition) ChunkOf(path string) (string, bool) {
	name, ok := p.owner[path]
	return name, ok
}

// SplitPoint returns the split point rooted at the module path.
func (p *Partition) SplitPoint(root string) (SplitPoint, bool) {
	i, ok := p.points[root]
	if !ok {
		return SplitPoint{}, false
	}
	return p.SplitPoints[i], true
}

// Size is the total size of all chunks.
func (p *Partition) Size() int {
	total := 0
	for _, c := range p.Chunks {
		total += c.Size
	}
	return total
}
