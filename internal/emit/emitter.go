// Package emit renders a chunk partition into output files and publishes them
// atomically.
package emit

import (
	"context"
	"fmt"
	"html/template"
	"path"
	"runtime"
	"strings"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/rnbundle/internal/chunk"
	"github.com/wolfeidau/rnbundle/internal/config"
	"github.com/wolfeidau/rnbundle/internal/graph"
)

// Emitter writes one artifact per chunk, a manifest and the HTML shell.
type Emitter struct {
	output  config.Output
	html    config.HTML
	tmpl    *template.Template
	workers int
}

// Artifact is a rendered file. Name is slash separated and relative to the
// output root.
type Artifact struct {
	Name  string
	Chunk string
	Data  []byte
}

// Bundle is the complete rendered output of a build, held in memory until it
// is written.
type Bundle struct {
	Chunks   []Artifact
	Manifest Artifact
	HTML     Artifact
}

// New creates an emitter. A configured HTML template is parsed up front so a
// broken template fails before any build work.
func New(output config.Output, html config.HTML, workers int) (*Emitter, error) {
	tmpl, err := loadTemplate(html.Template)
	if err != nil {
		return nil, &EmitError{Op: "template", Path: html.Template, Cause: err}
	}

	if workers < 1 {
		workers = runtime.GOMAXPROCS(0)
	}

	return &Emitter{
		output:  output,
		html:    html,
		tmpl:    tmpl,
		workers: workers,
	}, nil
}

// Emit renders the partition and publishes it under the output path.
func (e *Emitter) Emit(ctx context.Context, g *graph.Graph, p *chunk.Partition) (*Result, error) {
	b, err := e.Render(ctx, g, p)
	if err != nil {
		return nil, err
	}
	return e.Write(ctx, b)
}

// Render produces every artifact in memory and checks the output names for
// collisions. Nothing touches the filesystem.
func (e *Emitter) Render(ctx context.Context, g *graph.Graph, p *chunk.Partition) (*Bundle, error) {
	logger := zerolog.Ctx(ctx)

	ids := moduleIDs(g.Order, e.output.Root, e.output.ModuleIDs)

	chunkNames := make([]string, len(p.Chunks))
	for i, c := range p.Chunks {
		chunkNames[i] = c.Name
	}
	chunkIDs := shortIDs(chunkNames)

	runtimes := make(map[string]bool)
	initial := make(map[string]bool)
	entries := make(map[string]chunk.SplitPoint)
	for _, c := range p.Chunks {
		if c.Kind == chunk.KindRuntime {
			runtimes[c.Name] = true
		}
	}
	for _, sp := range p.SplitPoints {
		if !sp.Initial {
			continue
		}
		entries[sp.Name] = sp
		for _, name := range sp.Chunks {
			initial[name] = true
		}
	}

	withoutRuntime := func(names []string) []string {
		out := make([]string, 0, len(names))
		for _, n := range names {
			if !runtimes[n] {
				out = append(out, n)
			}
		}
		return out
	}

	bodies := make(map[string]string, len(p.Chunks))
	files := make(map[string]string, len(p.Chunks))
	for _, c := range p.Chunks {
		if runtimes[c.Name] {
			continue
		}

		var entry []any
		if sp, ok := entries[c.Name]; ok {
			entry = []any{ids[sp.Root], withoutRuntime(sp.Chunks)}
		}

		body, err := renderChunk(g, c, ids, entry)
		if err != nil {
			return nil, &EmitError{Op: "render", Path: c.Name, Cause: err}
		}
		bodies[c.Name] = body
		files[c.Name] = e.fileName(c.Name, chunkIDs[c.Name], initial[c.Name], []byte(body))
	}

	rtConfig := runtimeConfig{
		Global:      chunkGlobal,
		PublicPath:  e.output.PublicPath,
		Files:       files,
		SplitPoints: make(map[string][]string, len(p.SplitPoints)),
	}
	for _, sp := range p.SplitPoints {
		rtConfig.SplitPoints[ids[sp.Root]] = withoutRuntime(sp.Chunks)
	}
	rt, err := renderRuntime(rtConfig)
	if err != nil {
		return nil, &EmitError{Op: "render", Path: "runtime", Cause: err}
	}

	// an entry carrying the runtime is named after the runtime it embeds, so
	// the name changes whenever any other chunk's file name does
	inlined := func(c *chunk.Chunk) bool {
		return c.Kind == chunk.KindEntry && entries[c.Name].Runtime == ""
	}
	rerender := false
	for _, c := range p.Chunks {
		if inlined(c) {
			files[c.Name] = e.fileName(c.Name, chunkIDs[c.Name], initial[c.Name], []byte(rt+bodies[c.Name]))
			rerender = true
		}
	}
	if rerender {
		if rt, err = renderRuntime(rtConfig); err != nil {
			return nil, &EmitError{Op: "render", Path: "runtime", Cause: err}
		}
	}

	b := &Bundle{}
	for _, c := range p.Chunks {
		var data string
		switch {
		case runtimes[c.Name]:
			data = rt
			files[c.Name] = e.fileName(c.Name, chunkIDs[c.Name], true, []byte(rt))
		case inlined(c):
			data = rt + bodies[c.Name]
		default:
			data = bodies[c.Name]
		}
		b.Chunks = append(b.Chunks, Artifact{Name: files[c.Name], Chunk: c.Name, Data: []byte(data)})
	}

	shell, err := e.renderHTML(ctx, p, files)
	if err != nil {
		return nil, err
	}
	b.HTML = Artifact{Name: e.html.Filename, Data: shell}

	manifest := e.manifest(g, p, ids, files, initial)
	data, err := manifest.marshal()
	if err != nil {
		return nil, &EmitError{Op: "render", Path: e.output.Manifest, Cause: err}
	}
	b.Manifest = Artifact{Name: e.output.Manifest, Data: data}

	if err := e.checkNames(b); err != nil {
		return nil, err
	}

	logger.Debug().
		Int("chunks", len(b.Chunks)).
		Str("html", b.HTML.Name).
		Msg("Rendered bundle")

	return b, nil
}

func (e *Emitter) fileName(name, id string, initial bool, data []byte) string {
	tmpl := e.output.ChunkFilename
	if initial {
		tmpl = e.output.Filename
	}
	name = expandTemplate(tmpl, nameData{Name: name, ID: id, Hash: contentHash(data)})
	return path.Clean(strings.ReplaceAll(name, "\\", "/"))
}

// htmlChunks returns the chunks the shell references. Configured names match
// a chunk's name or, for subdivided chunks, every part of it. Names absent
// from the build are skipped. Without configured names every chunk an entry
// needs is referenced.
func (e *Emitter) htmlChunks(ctx context.Context, p *chunk.Partition) []string {
	var (
		out  []string
		seen = make(map[string]bool)
	)
	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}

	if len(e.html.Chunks) == 0 {
		for _, sp := range p.SplitPoints {
			if sp.Initial {
				for _, name := range sp.Chunks {
					add(name)
				}
			}
		}
		return out
	}

	for _, want := range e.html.Chunks {
		found := false
		for _, c := range p.Chunks {
			if c.Name == want || c.Origin == want {
				add(c.Name)
				found = true
			}
		}
		if !found {
			zerolog.Ctx(ctx).Debug().Str("chunk", want).Msg("HTML chunk not in build")
		}
	}
	return out
}

func (e *Emitter) renderHTML(ctx context.Context, p *chunk.Partition, files map[string]string) ([]byte, error) {
	names := e.htmlChunks(ctx, p)

	data := shellData{Title: e.html.Title, Chunks: names}
	for _, name := range names {
		data.Scripts = append(data.Scripts, e.output.PublicPath+files[name])
	}

	shell, err := renderShell(e.tmpl, data)
	if err != nil {
		return nil, &EmitError{Op: "render", Path: e.html.Filename, Cause: err}
	}
	return shell, nil
}

func (e *Emitter) manifest(g *graph.Graph, p *chunk.Partition, ids, files map[string]string, initial map[string]bool) *Manifest {
	m := &Manifest{
		Bundler:    bundlerName,
		PublicPath: e.output.PublicPath,
		HTML:       e.html.Filename,
		Modules:    make(map[string]string, len(ids)),
	}

	for _, modPath := range g.Order {
		m.Modules[ids[modPath]] = relativePath(e.output.Root, modPath)
	}

	for _, c := range p.Chunks {
		mc := ManifestChunk{
			Name:    c.Name,
			File:    files[c.Name],
			Kind:    string(c.Kind),
			Class:   c.Class,
			Initial: initial[c.Name],
			Size:    c.Size,
			Modules: make([]string, 0, len(c.Modules)),
		}
		for _, modPath := range c.Modules {
			mc.Modules = append(mc.Modules, ids[modPath])
		}
		m.Chunks = append(m.Chunks, mc)
	}

	for _, sp := range p.SplitPoints {
		m.SplitPoints = append(m.SplitPoints, ManifestPoint{
			Name:    sp.Name,
			Module:  ids[sp.Root],
			Initial: sp.Initial,
			Chunks:  sp.Chunks,
		})
	}

	return m
}

// checkNames normalises every artifact name and fails on names that escape the
// output root or resolve to the same path.
func (e *Emitter) checkNames(b *Bundle) error {
	owners := make(map[string]string)

	claim := func(a *Artifact, owner string) error {
		name, ok := cleanName(a.Name)
		if !ok {
			return &EmitError{Op: "plan", Path: a.Name, Cause: ErrInvalidName}
		}
		if prev, taken := owners[name]; taken {
			return &EmitError{
				Op:    "plan",
				Path:  name,
				Cause: fmt.Errorf("%w: %s and %s", ErrCollision, prev, owner),
			}
		}
		owners[name] = owner
		a.Name = name
		return nil
	}

	for i := range b.Chunks {
		a := &b.Chunks[i]
		if err := claim(a, "chunk "+a.Chunk); err != nil {
			return err
		}
		if e.output.Compress {
			sidecar := Artifact{Name: a.Name + ".zst"}
			if err := claim(&sidecar, "chunk "+a.Chunk); err != nil {
				return err
			}
		}
	}
	if err := claim(&b.Manifest, "manifest"); err != nil {
		return err
	}
	if err := claim(&b.HTML, "html"); err != nil {
		return err
	}

	return nil
}
