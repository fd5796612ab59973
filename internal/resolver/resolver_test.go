package resolver

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/rnbundle/internal/config"
)

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0750))
		require.NoError(t, os.WriteFile(p, []byte(content), 0600))
	}
}

func newResolver(t *testing.T, cfg config.Resolution) *Resolver {
	t.Helper()
	if len(cfg.Extensions) == 0 {
		cfg.Extensions = []string{".js"}
	}
	if len(cfg.Modules) == 0 {
		cfg.Modules = []string{"node_modules"}
	}
	if len(cfg.MainFields) == 0 {
		cfg.MainFields = []string{"browser", "main"}
	}
	r, err := New(cfg)
	require.NoError(t, err)
	return r
}

func TestResolve(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"src/index.js":                          "",
		"src/util.js":                           "",
		"src/util.ts":                           "",
		"src/components/index.js":               "",
		"src/data":                              "",
		"node_modules/lib-a/index.js":           "",
		"node_modules/lib-b/package.json":       `{"main": "dist/lib-b.js"}`,
		"node_modules/lib-b/dist/lib-b.js":      "",
		"node_modules/lib-c/package.json":       `{"browser": "web.js", "main": "node.js"}`,
		"node_modules/lib-c/web.js":             "",
		"node_modules/lib-c/node.js":            "",
		"node_modules/lib-d/package.json":       `{"browser": {"./x.js": false}, "main": "main.js"}`,
		"node_modules/lib-d/main.js":            "",
		"node_modules/@scope/pkg/lib/thing.js":  "",
		"node_modules/core/index.js":            "",
		"vendor/core.web.js":                    "",
		"src/node_modules/nested-only/index.js": "",
	})

	importer := filepath.Join(root, "src", "index.js")

	tests := []struct {
		name      string
		specifier string
		importer  string
		want      string
	}{
		{name: "relative with extension appended", specifier: "./util", importer: importer, want: "src/util.js"},
		{name: "relative verbatim", specifier: "./util.ts", importer: importer, want: "src/util.ts"},
		{name: "directory index", specifier: "./components", importer: importer, want: "src/components/index.js"},
		{name: "verbatim file without extension", specifier: "./data", importer: importer, want: "src/data"},
		{name: "bare package index", specifier: "lib-a", importer: importer, want: "node_modules/lib-a/index.js"},
		{name: "package main field", specifier: "lib-b", importer: importer, want: "node_modules/lib-b/dist/lib-b.js"},
		{name: "browser field wins", specifier: "lib-c", importer: importer, want: "node_modules/lib-c/web.js"},
		{name: "object browser field ignored", specifier: "lib-d", importer: importer, want: "node_modules/lib-d/main.js"},
		{name: "scoped deep import", specifier: "@scope/pkg/lib/thing", importer: importer, want: "node_modules/@scope/pkg/lib/thing.js"},
		{name: "nearest module root first", specifier: "nested-only", importer: importer, want: "src/node_modules/nested-only/index.js"},
	}

	r := newResolver(t, config.Resolution{})

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(tt.specifier, tt.importer)
			require.NoError(t, err)
			require.Equal(t, filepath.Join(root, filepath.FromSlash(tt.want)), got)
		})
	}
}

func TestResolve_AliasTakesPrecedence(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"src/index.js":               "",
		"node_modules/core/index.js": "",
		"node_modules/core/a.js":     "",
		"vendor/core.web.js":         "",
	})

	r := newResolver(t, config.Resolution{
		Alias: map[string]string{"core": filepath.Join(root, "vendor", "core.web.js")},
	})

	got, err := r.Resolve("core", filepath.Join(root, "src", "index.js"))
	require.NoError(t, err)
	require.Equal(t, filepath.Join(root, "vendor", "core.web.js"), got)

	// alias is exact match only
	_, err = r.Resolve("core/a", filepath.Join(root, "src", "index.js"))
	require.NoError(t, err)
}

func TestResolve_ExtensionOrder(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"src/index.js":    "",
		"src/view.web.js": "",
		"src/view.js":     "",
	})

	r := newResolver(t, config.Resolution{Extensions: []string{".web.js", ".js"}})

	got, err := r.Resolve("./view", filepath.Join(root, "src", "index.js"))
	require.NoError(t, err)
	require.Equal(t, filepath.Join(root, "src", "view.web.js"), got)
}

func TestResolve_AbsoluteModuleRoot(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"app/index.js":      "",
		"shared/widgets.js": "",
	})

	r := newResolver(t, config.Resolution{Modules: []string{filepath.Join(root, "shared"), "node_modules"}})

	got, err := r.Resolve("widgets", filepath.Join(root, "app", "index.js"))
	require.NoError(t, err)
	require.Equal(t, filepath.Join(root, "shared", "widgets.js"), got)
}

func TestResolve_Unresolved(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{"src/index.js": ""})

	r := newResolver(t, config.Resolution{})
	importer := filepath.Join(root, "src", "index.js")

	_, err := r.Resolve("./missing", importer)
	require.ErrorIs(t, err, ErrUnresolved)

	var unresolved *UnresolvedModuleError
	require.ErrorAs(t, err, &unresolved)
	require.Equal(t, "./missing", unresolved.Specifier)
	require.Equal(t, importer, unresolved.Importer)
	require.Contains(t, unresolved.Tried, filepath.Join(root, "src", "missing.js"))

	_, err = r.Resolve("no-such-package", importer)
	require.ErrorAs(t, err, &unresolved)
}
