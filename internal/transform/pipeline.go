package transform

import (
	"context"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/rnbundle/internal/config"
	"github.com/wolfeidau/rnbundle/internal/graph"
	"golang.org/x/sync/errgroup"
)

// Pipeline applies an ordered transform chain to every module whose extension
// is tested and whose path is not excluded by the filter. ES modules outside
// the chain still get their import and export syntax rewritten to CommonJS.
type Pipeline struct {
	test       map[string]bool
	filter     Filter
	transforms []Transform
	format     Transform
	workers    int
}

// NewPipeline creates a pipeline. test lists file extensions (".js"); workers
// bounds concurrency, values below one use GOMAXPROCS.
func NewPipeline(test []string, filter Filter, transforms []Transform, workers int) *Pipeline {
	exts := make(map[string]bool, len(test))
	for _, ext := range test {
		exts[strings.ToLower(ext)] = true
	}

	if workers < 1 {
		workers = runtime.GOMAXPROCS(0)
	}

	return &Pipeline{
		test:       exts,
		filter:     filter,
		transforms: append([]Transform(nil), transforms...),
		format:     NewModuleFormat(),
		workers:    workers,
	}
}

// NewPipelineFromConfig creates the pipeline described by the transform rule.
func NewPipelineFromConfig(cfg config.Transform, root string, workers int) (*Pipeline, error) {
	transforms, err := FromConfig(cfg, root)
	if err != nil {
		return nil, err
	}

	return NewPipeline(cfg.Test, NewFilter(cfg.Exclude.Base, cfg.Exclude.Allow), transforms, workers), nil
}

// Applies reports whether the pipeline transforms the module at path.
func (p *Pipeline) Applies(path string) bool {
	if len(p.transforms) == 0 {
		return false
	}
	if !p.test[strings.ToLower(filepath.Ext(path))] {
		return false
	}
	return !p.filter.Matches(path)
}

// Apply runs the transform chain over one module. Each transform receives the
// previous one's output.
func (p *Pipeline) Apply(source, path string) (string, error) {
	out := source
	for _, t := range p.transforms {
		next, err := t.Apply(out, path)
		if err != nil {
			return "", &TransformError{Stage: t.Name(), Path: path, Cause: err}
		}
		out = next
	}
	return out, nil
}

// convert rewrites the module syntax of an ES module the chain does not apply
// to, so the runtime's require can link it.
func (p *Pipeline) convert(source, path string) (string, error) {
	out, err := p.format.Apply(source, path)
	if err != nil {
		return "", &TransformError{Stage: p.format.Name(), Path: path, Cause: err}
	}
	return out, nil
}

// Run transforms every applicable module of g on a worker pool and returns a
// new graph. The first failure cancels outstanding work and is returned.
func (p *Pipeline) Run(ctx context.Context, g *graph.Graph) (*graph.Graph, error) {
	logger := zerolog.Ctx(ctx)

	var (
		mu  sync.Mutex
		out = make(map[string]string)
	)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(p.workers)

	skipped, formatted := 0, 0
	for _, m := range g.Modules() {
		apply := p.Apply
		switch {
		case p.Applies(m.Path):
		case m.ESM:
			apply = p.convert
			formatted++
		default:
			skipped++
			continue
		}

		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}

			code, err := apply(m.Source, m.Path)
			if err != nil {
				return err
			}

			mu.Lock()
			out[m.Path] = code
			mu.Unlock()
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}

	logger.Info().
		Int("transformed", len(out)-formatted).
		Int("formatted", formatted).
		Int("passthrough", skipped).
		Msg("Transformed modules")

	return g.WithTransformed(out)
}
