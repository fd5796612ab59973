package transform

import (
	"errors"
	"fmt"
	"maps"
	"path/filepath"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/wolfeidau/rnbundle/internal/config"
)

var targets = map[string]api.Target{
	"":       api.ES2015,
	"es5":    api.ES5,
	"es2015": api.ES2015,
	"es2016": api.ES2016,
	"es2017": api.ES2017,
	"es2018": api.ES2018,
	"es2019": api.ES2019,
	"es2020": api.ES2020,
	"es2021": api.ES2021,
	"es2022": api.ES2022,
	"esnext": api.ESNext,
}

var loaders = map[string]api.Loader{
	".js":  api.LoaderJSX,
	".jsx": api.LoaderJSX,
	".mjs": api.LoaderJS,
	".cjs": api.LoaderJS,
	".ts":  api.LoaderTS,
	".tsx": api.LoaderTSX,
}

// Esbuild downlevels syntax to the configured target and converts ES modules
// to CommonJS so the runtime's require can link them. JSX is compiled with the
// classic factory, define replacements are substituted at compile time and
// calls listed as pure become removable when their result is unused.
type Esbuild struct {
	name    string
	options api.TransformOptions
}

// NewEsbuild creates the esbuild transform.
func NewEsbuild(settings config.EsbuildSettings) (*Esbuild, error) {
	target, ok := targets[strings.ToLower(settings.Target)]
	if !ok {
		return nil, fmt.Errorf("unsupported esbuild target %q", settings.Target)
	}

	opts := api.TransformOptions{
		Target:      target,
		Format:      api.FormatCommonJS,
		Define:      maps.Clone(settings.Define),
		Pure:        append([]string(nil), settings.Pure...),
		JSX:         api.JSXTransform,
		JSXFactory:  cond(settings.JSXFactory != "", settings.JSXFactory, "React.createElement"),
		JSXFragment: cond(settings.JSXFragment != "", settings.JSXFragment, "React.Fragment"),
		// import() is linked by the runtime, so keep it rather than lowering it
		Supported: map[string]bool{
			"dynamic-import": true,
		},
		MinifyWhitespace:  settings.Minify,
		MinifyIdentifiers: settings.Minify,
		MinifySyntax:      settings.Minify,
		LegalComments:     api.LegalCommentsInline,
	}

	return &Esbuild{name: "esbuild", options: opts}, nil
}

// NewModuleFormat creates the transform applied to ES modules the pipeline
// leaves alone. It only rewrites import and export syntax to CommonJS; syntax
// is kept at its source level and nothing is substituted.
func NewModuleFormat() *Esbuild {
	return &Esbuild{
		name: "format",
		options: api.TransformOptions{
			Target: api.ESNext,
			Format: api.FormatCommonJS,
			JSX:    api.JSXTransform,
			Supported: map[string]bool{
				"dynamic-import": true,
			},
			LegalComments: api.LegalCommentsInline,
		},
	}
}

func (e *Esbuild) Name() string {
	return e.name
}

// Apply transforms a single module. The options value is copied per call so
// concurrent use is safe.
func (e *Esbuild) Apply(source, path string) (string, error) {
	opts := e.options
	opts.Sourcefile = path
	opts.Loader = api.LoaderJS
	if l, ok := loaders[strings.ToLower(filepath.Ext(path))]; ok {
		opts.Loader = l
	}

	result := api.Transform(source, opts)
	if len(result.Errors) > 0 {
		msgs := api.FormatMessages(result.Errors, api.FormatMessagesOptions{
			Kind: api.ErrorMessage,
		})
		return "", errors.New(strings.TrimSpace(strings.Join(msgs, "\n")))
	}

	return string(result.Code), nil
}

func cond[T any](condition bool, trueVal, falseVal T) T {
	if condition {
		return trueVal
	}
	return falseVal
}
