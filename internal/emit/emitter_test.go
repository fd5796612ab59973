package emit

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/rnbundle/internal/chunk"
	"github.com/wolfeidau/rnbundle/internal/config"
	"github.com/wolfeidau/rnbundle/internal/graph"
)

type source struct {
	path string
	code string
	deps []graph.Dependency
}

func newGraph(entries []graph.EntryModule, sources ...source) *graph.Graph {
	modules := make(map[string]*graph.Module, len(sources))
	for _, s := range sources {
		modules[s.path] = &graph.Module{Path: s.path, Source: s.code, Dependencies: s.deps}
	}
	return graph.New(entries, modules)
}

func appGraph() *graph.Graph {
	return newGraph([]graph.EntryModule{{Name: "index", Path: "/app/index.js"}},
		source{
			path: "/app/index.js",
			code: `var lib = require("lib-a"); var util = require("./util"); import("./page").then(function (m) { m.show(); });`,
			deps: []graph.Dependency{
				{Specifier: "lib-a", Path: "/app/node_modules/lib-a/index.js"},
				{Specifier: "./util", Path: "/app/util.js"},
				{Specifier: "./page", Path: "/app/page.js", Dynamic: true},
			},
		},
		source{path: "/app/node_modules/lib-a/index.js", code: `module.exports = "lib-a";`},
		source{path: "/app/util.js", code: `module.exports = 42;`},
		source{path: "/app/page.js", code: `exports.show = function () {};`},
	)
}

func appPolicy() config.Policy {
	return config.Policy{
		Chunks:                 config.ChunksAsync,
		MinChunks:              1,
		AutomaticNameDelimiter: "~",
		RuntimeChunk:           config.RuntimeMultiple,
		CacheGroups: []config.CacheGroup{{
			Key:      "vendors",
			Name:     "vendors",
			Test:     []string{"/node_modules/"},
			Chunks:   config.ChunksInitial,
			Priority: 9,
		}},
	}
}

func outputConfig(dir string) config.Output {
	return config.Output{
		Path:          filepath.Join(dir, "dist"),
		Filename:      "[name].bundle.js",
		ChunkFilename: "[name].chunk.js",
		PublicPath:    "https://test.com/",
		ModuleIDs:     "hashed",
		Manifest:      "manifest.json",
		Root:          "/app",
	}
}

func htmlConfig() config.HTML {
	return config.HTML{
		Filename: "bundle.html",
		Title:    "app",
		Chunks:   []string{"polyfill", "vendors", "commons", "runtime~index", "index"},
	}
}

func partition(t *testing.T, g *graph.Graph, policy config.Policy) *chunk.Partition {
	t.Helper()
	p, err := chunk.NewSplitter(policy).Split(context.Background(), g)
	require.NoError(t, err)
	return p
}

func readFile(t *testing.T, dir, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	return string(data)
}

func TestEmit(t *testing.T) {
	dir := t.TempDir()
	g := appGraph()

	e, err := New(outputConfig(dir), htmlConfig(), 2)
	require.NoError(t, err)

	res, err := e.Emit(context.Background(), g, partition(t, g, appPolicy()))
	require.NoError(t, err)

	out := filepath.Join(dir, "dist")
	require.Equal(t, out, res.Dir)

	var names []string
	for _, f := range res.Files {
		names = append(names, f.Name)
	}
	require.Equal(t, []string{"runtime~index.bundle.js", "vendors.bundle.js", "index.bundle.js", "page.chunk.js"}, names)

	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	require.Len(t, entries, 6)

	rt := readFile(t, out, "runtime~index.bundle.js")
	require.Contains(t, rt, "__rnbundleRuntime")
	require.Contains(t, rt, `"page":"page.chunk.js"`)
	require.Contains(t, rt, `"publicPath":"https://test.com/"`)

	index := readFile(t, out, "index.bundle.js")
	require.NotContains(t, index, "__rnbundleRuntime")
	require.Contains(t, index, `.push([["index"], {`)
	require.Contains(t, index, `require.async("./page").then(`)
	require.Contains(t, index, `["vendors","index"]]`)

	page := readFile(t, out, "page.chunk.js")
	require.Contains(t, page, `exports.show = function () {};`)
	require.NotContains(t, page, `["page"]]`)

	shell := readFile(t, out, "bundle.html")
	require.Contains(t, shell, "<title>app</title>")
	vendors := strings.Index(shell, `<script src="https://test.com/vendors.bundle.js"></script>`)
	runtime := strings.Index(shell, `<script src="https://test.com/runtime~index.bundle.js"></script>`)
	entry := strings.Index(shell, `<script src="https://test.com/index.bundle.js"></script>`)
	require.True(t, vendors >= 0 && runtime > vendors && entry > runtime, shell)
	require.NotContains(t, shell, "page.chunk.js")

	var m Manifest
	require.NoError(t, json.Unmarshal([]byte(readFile(t, out, "manifest.json")), &m))
	require.Equal(t, "bundle.html", m.HTML)
	require.Len(t, m.Chunks, 4)
	require.Len(t, m.Modules, 4)
	require.Contains(t, m.Modules, fingerprint("util.js")[:shortIDLength])
	require.Equal(t, "vendors", m.Chunks[1].Name)
	require.True(t, m.Chunks[1].Initial)
	require.False(t, m.Chunks[3].Initial)
	require.Equal(t, []string{"runtime~index", "vendors", "index"}, m.SplitPoints[0].Chunks)

	// nothing is left next to the output
	siblings, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, siblings, 1)
}

func TestEmit_InlineRuntime(t *testing.T) {
	dir := t.TempDir()
	g := appGraph()
	policy := appPolicy()
	policy.RuntimeChunk = config.RuntimeInline

	e, err := New(outputConfig(dir), config.HTML{Filename: "index.html"}, 1)
	require.NoError(t, err)

	_, err = e.Emit(context.Background(), g, partition(t, g, policy))
	require.NoError(t, err)

	out := filepath.Join(dir, "dist")
	index := readFile(t, out, "index.bundle.js")
	require.True(t, strings.Index(index, "__rnbundleRuntime") < strings.Index(index, `.push([["index"]`))

	// every chunk an entry needs is referenced when no chunk list is configured
	shell := readFile(t, out, "index.html")
	require.Contains(t, shell, "https://test.com/vendors.bundle.js")
	require.Contains(t, shell, "https://test.com/index.bundle.js")
}

func TestEmit_Collision(t *testing.T) {
	dir := t.TempDir()
	g := newGraph([]graph.EntryModule{{Name: "web", Path: "/app/web.js"}, {Name: "admin", Path: "/app/admin.js"}},
		source{path: "/app/web.js", code: "1;"},
		source{path: "/app/admin.js", code: "2;"},
	)

	out := outputConfig(dir)
	out.Filename = "app.js"

	e, err := New(out, config.HTML{Filename: "index.html"}, 2)
	require.NoError(t, err)

	_, err = e.Emit(context.Background(), g, partition(t, g, appPolicy()))
	require.ErrorIs(t, err, ErrCollision)

	var emitErr *EmitError
	require.ErrorAs(t, err, &emitErr)
	require.Equal(t, "app.js", emitErr.Path)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestEmit_CollisionWithShell(t *testing.T) {
	dir := t.TempDir()
	g := appGraph()

	e, err := New(outputConfig(dir), config.HTML{Filename: "./index.bundle.js"}, 2)
	require.NoError(t, err)

	_, err = e.Emit(context.Background(), g, partition(t, g, appPolicy()))
	require.ErrorIs(t, err, ErrCollision)
}

func TestEmit_InvalidName(t *testing.T) {
	dir := t.TempDir()
	g := appGraph()

	out := outputConfig(dir)
	out.ChunkFilename = "../[name].js"

	e, err := New(out, htmlConfig(), 2)
	require.NoError(t, err)

	_, err = e.Emit(context.Background(), g, partition(t, g, appPolicy()))
	require.ErrorIs(t, err, ErrInvalidName)
}

func TestEmit_ReplacesOutput(t *testing.T) {
	dir := t.TempDir()
	g := appGraph()
	e, err := New(outputConfig(dir), htmlConfig(), 2)
	require.NoError(t, err)

	_, err = e.Emit(context.Background(), g, partition(t, g, appPolicy()))
	require.NoError(t, err)

	stale := filepath.Join(dir, "dist", "stale.js")
	require.NoError(t, os.WriteFile(stale, []byte("old"), 0600))

	_, err = e.Emit(context.Background(), g, partition(t, g, appPolicy()))
	require.NoError(t, err)

	require.NoFileExists(t, stale)
	require.FileExists(t, filepath.Join(dir, "dist", "index.bundle.js"))
	require.Contains(t, readFile(t, filepath.Join(dir, "dist"), "manifest.json"), `"bundler": "rnbundle"`)

	siblings, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, siblings, 1)
}

func TestEmit_ReplacesEmptyOutput(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "dist"), 0750))

	g := appGraph()
	e, err := New(outputConfig(dir), htmlConfig(), 2)
	require.NoError(t, err)

	_, err = e.Emit(context.Background(), g, partition(t, g, appPolicy()))
	require.NoError(t, err)
	require.FileExists(t, filepath.Join(dir, "dist", "index.bundle.js"))
}

func TestEmit_ForeignOutput(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
	}{
		{
			name:  "no manifest",
			files: map[string]string{"package.json": "{}", "src/index.js": "keep"},
		},
		{
			name:  "manifest from another tool",
			files: map[string]string{"manifest.json": `{"name": "app"}`, "src/index.js": "keep"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			out := filepath.Join(dir, "dist")
			for name, content := range tt.files {
				p := filepath.Join(out, filepath.FromSlash(name))
				require.NoError(t, os.MkdirAll(filepath.Dir(p), 0750))
				require.NoError(t, os.WriteFile(p, []byte(content), 0600))
			}

			g := appGraph()
			e, err := New(outputConfig(dir), htmlConfig(), 2)
			require.NoError(t, err)

			_, err = e.Emit(context.Background(), g, partition(t, g, appPolicy()))
			require.ErrorIs(t, err, ErrForeignOutput)

			var emitErr *EmitError
			require.ErrorAs(t, err, &emitErr)
			require.Equal(t, "publish", emitErr.Op)

			for name, content := range tt.files {
				require.Equal(t, content, readFile(t, out, filepath.FromSlash(name)))
			}
			require.NoFileExists(t, filepath.Join(out, "index.bundle.js"))

			// the staging directory is cleaned up
			siblings, err := os.ReadDir(dir)
			require.NoError(t, err)
			require.Len(t, siblings, 1)
		})
	}
}

func TestEmit_Compress(t *testing.T) {
	dir := t.TempDir()
	g := appGraph()

	out := outputConfig(dir)
	out.Compress = true

	e, err := New(out, htmlConfig(), 2)
	require.NoError(t, err)

	res, err := e.Emit(context.Background(), g, partition(t, g, appPolicy()))
	require.NoError(t, err)
	require.Positive(t, res.CompressedBytes)

	dec, err := zstd.NewReader(nil)
	require.NoError(t, err)
	defer dec.Close()

	for _, f := range res.Files {
		raw := readFile(t, res.Dir, f.Name)
		compressed := readFile(t, res.Dir, f.Name+".zst")
		plain, err := dec.DecodeAll([]byte(compressed), nil)
		require.NoError(t, err)
		require.Equal(t, raw, string(plain))
	}
}

func TestRender_ContentHash(t *testing.T) {
	dir := t.TempDir()
	out := outputConfig(dir)
	out.Filename = "[name].[contenthash:8].js"
	out.ChunkFilename = "[id].[chunkhash].js"

	e, err := New(out, htmlConfig(), 2)
	require.NoError(t, err)

	render := func(g *graph.Graph) map[string]string {
		b, err := e.Render(context.Background(), g, partition(t, g, appPolicy()))
		require.NoError(t, err)
		files := make(map[string]string)
		for _, a := range b.Chunks {
			files[a.Chunk] = a.Name
		}
		return files
	}

	first := render(appGraph())
	require.Regexp(t, regexp.MustCompile(`^index\.[0-9a-f]{8}\.js$`), first["index"])
	require.Regexp(t, regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]{4,}\.[0-9a-f]{16}\.js$`), first["page"])

	require.Equal(t, first, render(appGraph()))

	changed := appGraph()
	m, ok := changed.Module("/app/util.js")
	require.True(t, ok)
	m.Source = `module.exports = 43;`

	second := render(changed)
	require.NotEqual(t, first["index"], second["index"])
	require.Equal(t, first["vendors"], second["vendors"])
	require.Equal(t, first["page"], second["page"])
}

func TestRender_ContentHashInlineRuntime(t *testing.T) {
	out := outputConfig(t.TempDir())
	out.Filename = "[name].[contenthash:8].js"
	out.ChunkFilename = "[name].[contenthash:8].js"

	policy := appPolicy()
	policy.RuntimeChunk = config.RuntimeInline

	e, err := New(out, htmlConfig(), 2)
	require.NoError(t, err)

	render := func(g *graph.Graph) (map[string]string, map[string]string) {
		b, err := e.Render(context.Background(), g, partition(t, g, policy))
		require.NoError(t, err)
		names := make(map[string]string)
		data := make(map[string]string)
		for _, a := range b.Chunks {
			names[a.Chunk] = a.Name
			data[a.Chunk] = string(a.Data)
		}
		return names, data
	}

	first, firstData := render(appGraph())
	require.Contains(t, firstData["index"], first["page"])
	require.Contains(t, firstData["index"], first["index"])

	changed := appGraph()
	m, ok := changed.Module("/app/page.js")
	require.True(t, ok)
	m.Source = `exports.show = function () { return 1; };`

	second, secondData := render(changed)
	require.NotEqual(t, first["page"], second["page"])
	// the entry body is unchanged but its embedded runtime names the new page file
	require.NotEqual(t, first["index"], second["index"])
	require.Contains(t, secondData["index"], second["page"])
	require.Contains(t, secondData["index"], second["index"])
	require.Equal(t, first["vendors"], second["vendors"])
}

func TestEmit_HTMLTemplate(t *testing.T) {
	dir := t.TempDir()
	tmplPath := filepath.Join(dir, "shell.html")
	require.NoError(t, os.WriteFile(tmplPath, []byte(`{{range .Chunks}}{{.}};{{end}}`), 0600))

	html := htmlConfig()
	html.Template = tmplPath

	g := appGraph()
	e, err := New(outputConfig(dir), html, 2)
	require.NoError(t, err)

	_, err = e.Emit(context.Background(), g, partition(t, g, appPolicy()))
	require.NoError(t, err)

	require.Equal(t, "vendors;runtime~index;index;", readFile(t, filepath.Join(dir, "dist"), "bundle.html"))
}

func TestNew_BadTemplate(t *testing.T) {
	_, err := New(config.Output{}, config.HTML{Template: filepath.Join(t.TempDir(), "missing.html")}, 1)

	var emitErr *EmitError
	require.ErrorAs(t, err, &emitErr)
	require.Equal(t, "template", emitErr.Op)
}

func TestEmit_UnwritableDestination(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("file"), 0600))

	g := appGraph()
	out := outputConfig(dir)
	out.Path = filepath.Join(blocker, "dist")

	e, err := New(out, htmlConfig(), 2)
	require.NoError(t, err)

	_, err = e.Emit(context.Background(), g, partition(t, g, appPolicy()))

	var emitErr *EmitError
	require.ErrorAs(t, err, &emitErr)
	require.Equal(t, "mkdir", emitErr.Op)
	require.Equal(t, blocker, emitErr.Path)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}
