package emit

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/wolfeidau/rnbundle/internal/chunk"
	"github.com/wolfeidau/rnbundle/internal/graph"
)

// jsString renders s as a JavaScript string literal.
func jsString(s string) string {
	data, _ := json.Marshal(s)
	return string(data)
}

// linkDynamicImports rewrites import("specifier") calls for the module's known
// dependencies into require.async("specifier"), which the runtime resolves
// through the module's specifier map. Calls inside string literals, template
// text and comments are left alone.
func linkDynamicImports(code string, deps []graph.Dependency) string {
	seen := make(map[string]bool, len(deps))
	alts := make([]string, 0, len(deps))
	for _, d := range deps {
		if seen[d.Specifier] || !strings.Contains(code, d.Specifier) {
			continue
		}
		seen[d.Specifier] = true
		alts = append(alts, regexp.QuoteMeta(d.Specifier))
	}
	if len(alts) == 0 {
		return code
	}

	pattern := regexp.MustCompile(`\bimport\s*\(\s*(["'` + "`" + `])(` + strings.Join(alts, "|") + `)(["'` + "`" + `])\s*\)`)
	matches := pattern.FindAllStringSubmatchIndex(code, -1)
	if len(matches) == 0 {
		return code
	}

	mask := codeMask(code)
	var b strings.Builder
	last := 0
	for _, m := range matches {
		start, end := m[0], m[1]
		open, spec, closing := code[m[2]:m[3]], code[m[4]:m[5]], code[m[6]:m[7]]
		if open != closing || !mask[start] || (start > 0 && code[start-1] == '.') {
			continue
		}
		b.WriteString(code[last:start])
		b.WriteString("require.async(" + jsString(spec) + ")")
		last = end
	}
	b.WriteString(code[last:])
	return b.String()
}

// codeMask marks the bytes of src that are code rather than string literals,
// template text or comments. Regular expression literals are treated as code.
func codeMask(src string) []bool {
	mask := make([]bool, len(src))

	// brace depth at each open template substitution
	var substitutions []int
	depth := 0
	inTemplate := false

	for i := 0; i < len(src); {
		if inTemplate {
			switch {
			case src[i] == '\\':
				i += 2
			case src[i] == '`':
				inTemplate = false
				i++
			case strings.HasPrefix(src[i:], "${"):
				substitutions = append(substitutions, depth)
				depth++
				inTemplate = false
				i += 2
			default:
				i++
			}
			continue
		}

		switch c := src[i]; {
		case strings.HasPrefix(src[i:], "//"):
			if n := strings.IndexByte(src[i:], '\n'); n >= 0 {
				i += n
			} else {
				i = len(src)
			}
		case strings.HasPrefix(src[i:], "/*"):
			if n := strings.Index(src[i+2:], "*/"); n >= 0 {
				i += n + 4
			} else {
				i = len(src)
			}
		case c == '"' || c == '\'':
			i = skipQuoted(src, i)
		case c == '`':
			inTemplate = true
			i++
		case c == '}' && len(substitutions) > 0 && substitutions[len(substitutions)-1] == depth-1:
			substitutions = substitutions[:len(substitutions)-1]
			depth--
			inTemplate = true
			i++
		default:
			switch c {
			case '{':
				depth++
			case '}':
				depth--
			}
			mask[i] = true
			i++
		}
	}
	return mask
}

// skipQuoted returns the offset just past the string literal opening at i.
func skipQuoted(src string, i int) int {
	quote := src[i]
	for j := i + 1; j < len(src); j++ {
		switch src[j] {
		case '\\':
			j++
		case quote:
			return j + 1
		case '\n':
			return j
		}
	}
	return len(src)
}

// renderChunk renders the registration of a chunk's modules. entry is nil for
// chunks that do not start an entry point.
func renderChunk(g *graph.Graph, c *chunk.Chunk, ids map[string]string, entry []any) (string, error) {
	var b strings.Builder

	fmt.Fprintf(&b, "(%s[%s] = %s[%s] || []).push([[%s], {\n",
		globalObject, jsString(chunkGlobal), globalObject, jsString(chunkGlobal), jsString(c.Name))

	for i, path := range c.Modules {
		m, ok := g.Module(path)
		if !ok {
			return "", fmt.Errorf("chunk %s references unknown module %s", c.Name, path)
		}

		specifiers := make(map[string]string, len(m.Dependencies))
		for _, d := range m.Dependencies {
			specifiers[d.Specifier] = ids[d.Path]
		}
		specData, err := json.Marshal(specifiers)
		if err != nil {
			return "", err
		}

		fmt.Fprintf(&b, "%s: [function (module, exports, require) {\n%s\n}, %s]",
			jsString(ids[path]), linkDynamicImports(m.Code(), m.Dependencies), specData)
		if i < len(c.Modules)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}

	b.WriteString("}")
	if entry != nil {
		data, err := json.Marshal(entry)
		if err != nil {
			return "", err
		}
		b.WriteString(", ")
		b.Write(data)
	}
	b.WriteString("]);\n")

	return b.String(), nil
}
