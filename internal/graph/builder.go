package graph

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/rnbundle/internal/config"
	"github.com/wolfeidau/rnbundle/internal/resolver"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// UnresolvedModuleError is returned when a specifier has no matching file.
type UnresolvedModuleError = resolver.UnresolvedModuleError

// scannable lists the extensions whose source is scanned for imports
var scannable = map[string]bool{
	".js":  true,
	".jsx": true,
	".mjs": true,
	".cjs": true,
	".ts":  true,
	".tsx": true,
}

// Builder resolves entry points into a module graph.
type Builder struct {
	cfg      config.Resolution
	resolver *resolver.Resolver
	workers  int64
}

// NewBuilder creates a builder. workers bounds how many files are loaded
// concurrently; values below one use GOMAXPROCS.
func NewBuilder(cfg config.Resolution, workers int) (*Builder, error) {
	r, err := resolver.New(cfg)
	if err != nil {
		return nil, err
	}

	if workers < 1 {
		workers = runtime.GOMAXPROCS(0)
	}

	return &Builder{
		cfg:      cfg,
		resolver: r,
		workers:  int64(workers),
	}, nil
}

// Build loads every module reachable from the configured entries. Independent
// subtrees load in parallel; each module is claimed exactly once so shared
// dependencies and cycles are only descended into the first time they are seen.
func (b *Builder) Build(ctx context.Context) (*Graph, error) {
	logger := zerolog.Ctx(ctx)

	entries := make([]EntryModule, 0, len(b.cfg.Entries))
	for _, e := range b.cfg.Entries {
		p := e.Path
		if !filepath.IsAbs(p) {
			abs, err := filepath.Abs(p)
			if err != nil {
				return nil, err
			}
			p = abs
		}
		resolved, err := b.resolver.Resolve(p, "")
		if err != nil {
			return nil, fmt.Errorf("entry %s: %w", e.Name, err)
		}
		entries = append(entries, EntryModule{Name: e.Name, Path: resolved})
	}

	var (
		mu      sync.Mutex
		modules = make(map[string]*Module)
		claimed = make(map[string]bool)
	)

	sem := semaphore.NewWeighted(b.workers)
	eg, egCtx := errgroup.WithContext(ctx)

	var load func(path string)
	load = func(path string) {
		eg.Go(func() error {
			if err := sem.Acquire(egCtx, 1); err != nil {
				return err
			}
			m, err := b.loadModule(path)
			sem.Release(1)
			if err != nil {
				return err
			}

			mu.Lock()
			modules[path] = m
			var fresh []string
			for _, d := range m.Dependencies {
				if !claimed[d.Path] {
					claimed[d.Path] = true
					fresh = append(fresh, d.Path)
				}
			}
			mu.Unlock()

			logger.Debug().
				Str("module", path).
				Int("dependencies", len(m.Dependencies)).
				Msg("Loaded module")

			for _, p := range fresh {
				load(p)
			}
			return nil
		})
	}

	mu.Lock()
	var roots []string
	for _, e := range entries {
		if !claimed[e.Path] {
			claimed[e.Path] = true
			roots = append(roots, e.Path)
		}
	}
	mu.Unlock()

	for _, p := range roots {
		load(p)
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}

	g := New(entries, modules)

	logger.Info().
		Int("modules", g.Len()).
		Int("entries", len(entries)).
		Msg("Module graph built")

	return g, nil
}

// loadModule reads path and resolves each of its specifiers.
func (b *Builder) loadModule(path string) (*Module, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path produced by the resolver
	if err != nil {
		return nil, fmt.Errorf("failed to read module %s: %w", path, err)
	}

	m := &Module{
		Path:   path,
		Source: string(data),
	}

	if !scannable[strings.ToLower(filepath.Ext(path))] {
		return m, nil
	}

	imports, err := ScanImports(m.Source, path)
	if err != nil {
		return nil, err
	}
	m.ESM = imports.ESM

	for _, spec := range imports.Specifiers {
		resolved, err := b.resolver.Resolve(spec.Value, path)
		if err != nil {
			return nil, err
		}
		m.Dependencies = append(m.Dependencies, Dependency{
			Specifier: spec.Value,
			Path:      resolved,
			Dynamic:   spec.Dynamic,
		})
	}

	return m, nil
}
