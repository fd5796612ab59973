package emit

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/rnbundle/internal/graph"
)

func TestExpandTemplate(t *testing.T) {
	data := nameData{Name: "vendors", ID: "4xQz", Hash: "0123456789abcdef"}

	tests := []struct {
		tmpl string
		want string
	}{
		{tmpl: "[name].bundle.js", want: "vendors.bundle.js"},
		{tmpl: "[name].[contenthash].js", want: "vendors.0123456789abcdef.js"},
		{tmpl: "[name].[contenthash:8].js", want: "vendors.01234567.js"},
		{tmpl: "[id].[chunkhash:4].js", want: "4xQz.0123.js"},
		{tmpl: "js/[name]/[hash:40].js", want: "js/vendors/0123456789abcdef.js"},
		{tmpl: "[name].[ext]", want: "vendors.[ext]"},
		{tmpl: "static.js", want: "static.js"},
	}

	for _, tt := range tests {
		t.Run(tt.tmpl, func(t *testing.T) {
			require.Equal(t, tt.want, expandTemplate(tt.tmpl, data))
		})
	}
}

func TestCleanName(t *testing.T) {
	name, ok := cleanName("./js//a.js")
	require.True(t, ok)
	require.Equal(t, "js/a.js", name)

	name, ok = cleanName(`js\a.js`)
	require.True(t, ok)
	require.Equal(t, "js/a.js", name)

	for _, bad := range []string{"../a.js", "/abs/a.js", "js/../../a.js", "", "."} {
		_, ok := cleanName(bad)
		require.False(t, ok, bad)
	}
}

func TestShortIDs(t *testing.T) {
	keys := []string{"src/index.js", "src/util.js", "node_modules/lib-a/index.js", "src/index.js"}

	ids := shortIDs(keys)
	require.Len(t, ids, 3)

	seen := make(map[string]bool)
	for _, key := range keys[:3] {
		id := ids[key]
		require.GreaterOrEqual(t, len(id), shortIDLength)
		require.Equal(t, fingerprint(key)[:len(id)], id)
		require.False(t, seen[id])
		seen[id] = true
	}

	require.Equal(t, ids, shortIDs(keys))
}

func TestModuleIDs(t *testing.T) {
	paths := []string{"/app/src/index.js", "/app/node_modules/lib/index.js", "/elsewhere/x.js"}

	named := moduleIDs(paths, "/app", "named")
	require.Equal(t, map[string]string{
		"/app/src/index.js":              "src/index.js",
		"/app/node_modules/lib/index.js": "node_modules/lib/index.js",
		"/elsewhere/x.js":                "/elsewhere/x.js",
	}, named)

	hashed := moduleIDs(paths, "/app", "hashed")
	require.Len(t, hashed, 3)
	require.Equal(t, fingerprint("src/index.js")[:shortIDLength], hashed["/app/src/index.js"])
}

func TestLinkDynamicImports(t *testing.T) {
	deps := []graph.Dependency{
		{Specifier: "./page", Path: "/app/page.js", Dynamic: true},
		{Specifier: "./page-two", Path: "/app/page-two.js", Dynamic: true},
		{Specifier: "lib", Path: "/app/node_modules/lib/index.js"},
	}

	tests := []struct {
		name string
		code string
		want string
	}{
		{
			name: "quote styles",
			code: `import("./page").then(render); import( './page' ); import(` + "`./page`" + `);`,
			want: `require.async("./page").then(render); require.async("./page"); require.async("./page");`,
		},
		{
			name: "unknown and lookalike calls",
			code: `import("./other"); reimport("./page"); loader.import("./page"); require("lib");`,
			want: `import("./other"); reimport("./page"); loader.import("./page"); require("lib");`,
		},
		{
			name: "specifier sharing a prefix",
			code: `import("./page-two"); import("./page");`,
			want: `require.async("./page-two"); require.async("./page");`,
		},
		{
			name: "mismatched quotes",
			code: `import("./page');`,
			want: `import("./page');`,
		},
		{
			name: "string literals",
			code: `var help = "call import('./page') later"; var s = 'import("./page")'; import("./page");`,
			want: `var help = "call import('./page') later"; var s = 'import("./page")'; require.async("./page");`,
		},
		{
			name: "comments",
			code: "// import(\"./page\")\n/* import('./page') */ import('./page');",
			want: "// import(\"./page\")\n/* import('./page') */ require.async(\"./page\");",
		},
		{
			name: "template text and substitutions",
			code: "var t = `import('./page') ${ import('./page') }`;",
			want: "var t = `import('./page') ${ require.async(\"./page\") }`;",
		},
		{
			name: "escaped quote inside a string",
			code: `var s = "say \"import('./page')\""; import("./page");`,
			want: `var s = "say \"import('./page')\""; require.async("./page");`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, linkDynamicImports(tt.code, deps))
		})
	}
}
