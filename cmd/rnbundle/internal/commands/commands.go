package commands

import (
	"fmt"

	"github.com/wolfeidau/rnbundle/internal/config"
)

type Globals struct {
	Debug   bool
	Version string
}

// ConfigFlags locates the build configuration.
type ConfigFlags struct {
	Config  string `help:"path to the build configuration" default:"rnbundle.yaml" type:"path" env:"RNBUNDLE_CONFIG"`
	Workers int    `help:"worker count for loading, transforming and writing (0 uses GOMAXPROCS)" default:"-1" env:"RNBUNDLE_WORKERS"`
}

// load reads the configuration and applies flag overrides. A negative worker
// count keeps the configured value.
func (f ConfigFlags) load() (config.Config, error) {
	cfg, err := config.Load(f.Config)
	if err != nil {
		return config.Config{}, fmt.Errorf("failed to load configuration %s: %w", f.Config, err)
	}
	if f.Workers >= 0 {
		cfg.Workers = f.Workers
	}
	return cfg, nil
}

func humanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
