package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/wolfeidau/rnbundle/internal/config"
)

// ErrConfigExists is returned when init would overwrite a configuration
// without --force.
var ErrConfigExists = errors.New("configuration already exists")

// InitCmd writes the default configuration.
type InitCmd struct {
	Path  string `arg:"" optional:"" help:"Where to write the configuration" default:"rnbundle.yaml" type:"path"`
	Force bool   `help:"Overwrite an existing configuration" default:"false"`
}

func (c *InitCmd) Run(ctx context.Context, globals *Globals) error {
	if _, err := os.Stat(c.Path); err == nil && !c.Force {
		return fmt.Errorf("%w: %s\n\nTo overwrite it:\n  rnbundle init --force %s", ErrConfigExists, c.Path, c.Path)
	}

	data, err := config.DefaultConfig().Marshal()
	if err != nil {
		return fmt.Errorf("failed to render configuration: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(c.Path), 0750); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(c.Path, data, 0600); err != nil {
		return fmt.Errorf("failed to write configuration: %w", err)
	}

	fmt.Printf("Wrote configuration: %s\n", c.Path)
	fmt.Println()
	fmt.Println("To build:")
	fmt.Printf("  rnbundle build --config %s\n", c.Path)

	return nil
}
