// Package transform runs ordered source-to-source transforms over modules.
package transform

import (
	"errors"
	"fmt"
	"strings"

	"github.com/wolfeidau/rnbundle/internal/config"
)

// ErrUnknownTransform indicates a transform name with no built-in implementation
var ErrUnknownTransform = errors.New("unknown transform")

// Transform is a pure source-to-source step. Implementations must not keep
// state between calls; Apply runs concurrently across modules.
type Transform interface {
	Name() string
	Apply(source, path string) (string, error)
}

// TransformError reports the stage and module a transform failed on.
type TransformError struct {
	Stage string
	Path  string
	Cause error
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("transform %s failed for %s: %v", e.Stage, e.Path, e.Cause)
}

func (e *TransformError) Unwrap() error {
	return e.Cause
}

type funcTransform struct {
	name string
	fn   func(source, path string) (string, error)
}

// Func adapts a function into a Transform.
func Func(name string, fn func(source, path string) (string, error)) Transform {
	return funcTransform{name: name, fn: fn}
}

func (f funcTransform) Name() string { return f.name }

func (f funcTransform) Apply(source, path string) (string, error) {
	return f.fn(source, path)
}

// Banner prefixes every module with a comment naming its path.
func Banner(root string) Transform {
	return Func("banner", func(source, path string) (string, error) {
		name := path
		if root != "" {
			name = strings.TrimPrefix(strings.TrimPrefix(path, root), "/")
		}
		name = strings.ReplaceAll(name, "*/", "*\\/")
		return "/*! " + name + " */\n" + source, nil
	})
}

// FromConfig builds the ordered transform list named in cfg. root is used to
// shorten paths in diagnostics.
func FromConfig(cfg config.Transform, root string) ([]Transform, error) {
	out := make([]Transform, 0, len(cfg.Transforms))
	for _, spec := range cfg.Transforms {
		switch spec.Name {
		case "esbuild":
			settings := config.EsbuildSettings{}
			if spec.Esbuild != nil {
				settings = *spec.Esbuild
			}
			t, err := NewEsbuild(settings)
			if err != nil {
				return nil, err
			}
			out = append(out, t)
		case "banner":
			out = append(out, Banner(root))
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnknownTransform, spec.Name)
		}
	}
	return out, nil
}
