package graph

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
)

// Specifier is an import found in source text.
type Specifier struct {
	Value   string
	Dynamic bool
}

// Imports is what scanning a module reports.
type Imports struct {
	// Specifiers in order of appearance
	Specifiers []Specifier
	// ESM is set when the module uses import or export syntax
	ESM bool
}

// ParseError reports a module esbuild could not parse.
type ParseError struct {
	Path  string
	Cause error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse %s: %v", e.Path, e.Cause)
}

func (e *ParseError) Unwrap() error {
	return e.Cause
}

var scanLoaders = map[string]api.Loader{
	".js":  api.LoaderJSX,
	".jsx": api.LoaderJSX,
	".mjs": api.LoaderJS,
	".cjs": api.LoaderJS,
	".ts":  api.LoaderTS,
	".tsx": api.LoaderTSX,
}

const recorderName = "rnbundle-imports"

// ScanImports parses source with esbuild and records its import records.
// Every import is marked external so esbuild resolves and loads nothing. The
// loader is chosen by the extension of path. A specifier imported both
// statically and dynamically is reported once, as static. Type-only imports in
// TypeScript are dropped by the parser and never reported.
func ScanImports(source, path string) (Imports, error) {
	loader, ok := scanLoaders[strings.ToLower(filepath.Ext(path))]
	if !ok {
		loader = api.LoaderJS
	}

	// OnResolve runs in import record order for a single file
	var found []Specifier
	recorder := api.Plugin{
		Name: recorderName,
		Setup: func(build api.PluginBuild) {
			build.OnResolve(api.OnResolveOptions{Filter: ".*"}, func(args api.OnResolveArgs) (api.OnResolveResult, error) {
				switch args.Kind {
				case api.ResolveJSImportStatement, api.ResolveJSRequireCall:
					found = append(found, Specifier{Value: args.Path})
				case api.ResolveJSDynamicImport:
					found = append(found, Specifier{Value: args.Path, Dynamic: true})
				}
				return api.OnResolveResult{Path: args.Path, External: true}, nil
			})
		},
	}

	result := api.Build(api.BuildOptions{
		Stdin: &api.StdinOptions{
			Contents:   source,
			Sourcefile: path,
			Loader:     loader,
		},
		Bundle:   true,
		Write:    false,
		Metafile: true,
		LogLevel: api.LogLevelSilent,
		Format:   api.FormatESM,
		Target:   api.ESNext,
		Plugins:  []api.Plugin{recorder},
	})
	if len(result.Errors) > 0 {
		msgs := api.FormatMessages(result.Errors, api.FormatMessagesOptions{
			Kind: api.ErrorMessage,
		})
		return Imports{}, &ParseError{Path: path, Cause: errors.New(strings.TrimSpace(strings.Join(msgs, "\n")))}
	}

	esm, err := metafileESM(result.Metafile)
	if err != nil {
		return Imports{}, &ParseError{Path: path, Cause: err}
	}

	return Imports{Specifiers: dedupe(found), ESM: esm}, nil
}

// metafileESM reports whether the single input of a metafile has the esm
// format.
func metafileESM(metafile string) (bool, error) {
	var meta struct {
		Inputs map[string]struct {
			Format string `json:"format"`
		} `json:"inputs"`
	}
	if err := json.Unmarshal([]byte(metafile), &meta); err != nil {
		return false, fmt.Errorf("failed to decode metafile: %w", err)
	}
	for _, in := range meta.Inputs {
		if in.Format == "esm" {
			return true, nil
		}
	}
	return false, nil
}

func dedupe(found []Specifier) []Specifier {
	static := make(map[string]bool)
	for _, s := range found {
		if !s.Dynamic {
			static[s.Value] = true
		}
	}

	seen := make(map[string]bool)
	out := make([]Specifier, 0, len(found))
	for _, s := range found {
		if seen[s.Value] {
			continue
		}
		seen[s.Value] = true
		if static[s.Value] {
			s.Dynamic = false
		}
		out = append(out, s)
	}
	return out
}
