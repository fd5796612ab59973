package transform

import (
	"path/filepath"
	"strings"
)

// Filter is a default-deny exclusion over a base directory with allow-listed
// carve-outs. It matches (excludes) a path that lies under the base directory
// unless the remainder of the path after the base starts with an allow-listed
// sub-path. Paths outside the base never match.
//
// A relative base such as "node_modules" is a path segment sequence and is
// checked at every place it occurs in the path, so a nested
// node_modules/allowed/node_modules/other/x.js still matches. An absolute base
// is a single directory prefix.
//
// Matching compares whole path segments: "react-native-web" allows
// react-native-web/dist/index.js but not react-native-web-linear-gradient.
type Filter struct {
	base     []string
	absolute bool
	allow    [][]string
}

// NewFilter creates a filter. An empty base never matches anything.
func NewFilter(base string, allow []string) Filter {
	f := Filter{
		absolute: filepath.IsAbs(base),
	}
	if base != "" {
		f.base = segments(base)
	}
	for _, a := range allow {
		if s := segments(a); len(s) > 0 {
			f.allow = append(f.allow, s)
		}
	}
	return f
}

// Matches reports whether path is excluded by the filter.
func (f Filter) Matches(path string) bool {
	if len(f.base) == 0 {
		return false
	}

	segs := segments(path)

	if f.absolute {
		if !hasPrefix(segs, f.base) {
			return false
		}
		return !f.allowed(segs[len(f.base):])
	}

	for i := 0; i+len(f.base) <= len(segs); i++ {
		if !hasPrefix(segs[i:], f.base) {
			continue
		}
		if !f.allowed(segs[i+len(f.base):]) {
			return true
		}
	}

	return false
}

func (f Filter) allowed(rest []string) bool {
	for _, a := range f.allow {
		if hasPrefix(rest, a) {
			return true
		}
	}
	return false
}

func hasPrefix(segs, prefix []string) bool {
	if len(prefix) > len(segs) {
		return false
	}
	for i := range prefix {
		if segs[i] != prefix[i] {
			return false
		}
	}
	return true
}

// segments splits a path on either separator, dropping empty and "." parts.
func segments(p string) []string {
	p = strings.ReplaceAll(p, "\\", "/")
	parts := strings.Split(p, "/")
	out := parts[:0]
	for _, s := range parts {
		if s == "" || s == "." {
			continue
		}
		out = append(out, s)
	}
	return out
}
