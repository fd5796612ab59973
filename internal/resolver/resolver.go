// Package resolver maps import specifiers to files on disk.
//
// A specifier is resolved by trying, in order: an exact alias, then the
// specifier relative to the importer (for ./, ../ and absolute specifiers) or
// within each module root (for bare specifiers). Every candidate is tried
// verbatim, then with each configured extension appended, then as a directory
// through its package.json main fields and index file.
package resolver

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/wolfeidau/rnbundle/internal/config"
)

// ErrUnresolved indicates no candidate file exists for a specifier
var ErrUnresolved = errors.New("module not found")

const statCacheSize = 4096

// UnresolvedModuleError reports a specifier that could not be mapped to a file
// after exhausting aliases, roots and extensions.
type UnresolvedModuleError struct {
	Specifier string
	Importer  string
	Tried     []string
}

func (e *UnresolvedModuleError) Error() string {
	return fmt.Sprintf("cannot resolve %q from %s (tried %d candidates)", e.Specifier, e.Importer, len(e.Tried))
}

func (e *UnresolvedModuleError) Unwrap() error {
	return ErrUnresolved
}

type entryKind uint8

const (
	kindMissing entryKind = iota
	kindFile
	kindDir
)

// Resolver is safe for concurrent use. Lookups are memoised for the lifetime
// of the resolver, which is one build.
type Resolver struct {
	cfg   config.Resolution
	stats *lru.Cache[string, entryKind]
}

// New creates a resolver for the given resolution settings.
func New(cfg config.Resolution) (*Resolver, error) {
	cache, err := lru.New[string, entryKind](statCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create stat cache: %w", err)
	}

	return &Resolver{cfg: cfg, stats: cache}, nil
}

// Resolve returns the absolute path of the file specifier refers to when
// imported from importer. importer may be empty for entry points, in which
// case relative specifiers resolve against the working directory.
func (r *Resolver) Resolve(specifier, importer string) (string, error) {
	var tried []string

	if target, ok := r.cfg.Alias[specifier]; ok {
		if p, ok := r.resolveCandidate(target, &tried); ok {
			return p, nil
		}
		return "", &UnresolvedModuleError{Specifier: specifier, Importer: importer, Tried: tried}
	}

	baseDir := filepath.Dir(importer)
	if importer == "" {
		baseDir = "."
	}

	if isPathSpecifier(specifier) {
		candidate := specifier
		if !filepath.IsAbs(candidate) {
			candidate = filepath.Join(baseDir, filepath.FromSlash(specifier))
		}
		candidate, err := filepath.Abs(candidate)
		if err != nil {
			return "", err
		}
		if p, ok := r.resolveCandidate(candidate, &tried); ok {
			return p, nil
		}
		return "", &UnresolvedModuleError{Specifier: specifier, Importer: importer, Tried: tried}
	}

	for _, root := range r.cfg.Modules {
		for _, dir := range r.rootDirs(root, baseDir) {
			candidate := filepath.Join(dir, filepath.FromSlash(specifier))
			if p, ok := r.resolveCandidate(candidate, &tried); ok {
				return p, nil
			}
		}
	}

	return "", &UnresolvedModuleError{Specifier: specifier, Importer: importer, Tried: tried}
}

// rootDirs lists the directories a module root expands to: absolute roots are
// used as-is, bare names are looked up in every ancestor of baseDir.
func (r *Resolver) rootDirs(root, baseDir string) []string {
	if filepath.IsAbs(root) {
		return []string{root}
	}

	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil
	}

	var dirs []string
	for dir := abs; ; dir = filepath.Dir(dir) {
		if filepath.Base(dir) != root {
			dirs = append(dirs, filepath.Join(dir, root))
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
	}
	return dirs
}

// resolveCandidate tries candidate verbatim, with each extension, and as a
// directory.
func (r *Resolver) resolveCandidate(candidate string, tried *[]string) (string, bool) {
	if p, ok := r.resolveFile(candidate, tried); ok {
		return p, true
	}

	if r.stat(candidate) != kindDir {
		return "", false
	}

	for _, field := range r.cfg.MainFields {
		main := r.packageMain(candidate, field)
		if main == "" {
			continue
		}
		if p, ok := r.resolveFile(filepath.Join(candidate, filepath.FromSlash(main)), tried); ok {
			return p, true
		}
		if p, ok := r.resolveFile(filepath.Join(candidate, filepath.FromSlash(main), "index"), tried); ok {
			return p, true
		}
	}

	return r.resolveFile(filepath.Join(candidate, "index"), tried)
}

func (r *Resolver) resolveFile(candidate string, tried *[]string) (string, bool) {
	*tried = append(*tried, candidate)
	if r.stat(candidate) == kindFile {
		return candidate, true
	}

	for _, ext := range r.cfg.Extensions {
		p := candidate + ext
		*tried = append(*tried, p)
		if r.stat(p) == kindFile {
			return p, true
		}
	}

	return "", false
}

// packageMain reads a string field from dir/package.json. Object-valued
// browser fields (per-file replacement maps) are ignored.
func (r *Resolver) packageMain(dir, field string) string {
	pkgPath := filepath.Join(dir, "package.json")
	if r.stat(pkgPath) != kindFile {
		return ""
	}

	data, err := os.ReadFile(pkgPath) // #nosec G304 - path derived from the module graph
	if err != nil {
		return ""
	}

	var pkg map[string]json.RawMessage
	if err := json.Unmarshal(data, &pkg); err != nil {
		return ""
	}

	raw, ok := pkg[field]
	if !ok {
		return ""
	}

	var main string
	if err := json.Unmarshal(raw, &main); err != nil {
		return ""
	}
	return main
}

func (r *Resolver) stat(path string) entryKind {
	if kind, ok := r.stats.Get(path); ok {
		return kind
	}

	kind := kindMissing
	if info, err := os.Stat(path); err == nil {
		kind = kindFile
		if info.IsDir() {
			kind = kindDir
		}
	}

	r.stats.Add(path, kind)
	return kind
}

func isPathSpecifier(specifier string) bool {
	return strings.HasPrefix(specifier, "./") ||
		strings.HasPrefix(specifier, "../") ||
		specifier == "." ||
		specifier == ".." ||
		filepath.IsAbs(specifier)
}
