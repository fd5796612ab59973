package chunk

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/wolfeidau/rnbundle/internal/graph"
)

type point struct {
	name    string
	root    string
	initial bool
}

// discoverSplitPoints returns the entries in declared order followed by the
// targets of dynamic imports in discovery order. A dynamic import of a module
// that is already a split point does not create another one.
func discoverSplitPoints(g *graph.Graph, delim string) []point {
	var (
		points []point
		roots  = make(map[string]bool)
		names  = make(map[string]bool)
	)

	for _, e := range g.Entries {
		if roots[e.Path] {
			continue
		}
		roots[e.Path] = true
		names[e.Name] = true
		points = append(points, point{name: e.Name, root: e.Path, initial: true})
	}

	for _, m := range g.Modules() {
		for _, d := range m.Dependencies {
			if !d.Dynamic || roots[d.Path] {
				continue
			}
			roots[d.Path] = true

			name := uniqueName(asyncName(d.Path), names, delim)
			names[name] = true
			points = append(points, point{name: name, root: d.Path})
		}
	}

	return points
}

// asyncName derives a chunk name from a module path: the file name without
// extension, or the directory name for index files.
func asyncName(path string) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if base == "index" {
		if dir := filepath.Base(filepath.Dir(path)); dir != "." && dir != string(filepath.Separator) {
			base = dir
		}
	}
	return base
}

func uniqueName(name string, taken map[string]bool, delim string) string {
	if !taken[name] {
		return name
	}
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s%s%d", name, delim, i)
		if !taken[candidate] {
			return candidate
		}
	}
}
