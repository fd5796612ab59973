package commands

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/rnbundle/internal/bundle"
	"github.com/wolfeidau/rnbundle/internal/logger"
	"github.com/wolfeidau/rnbundle/internal/telemetry"
)

type BuildCmd struct {
	ConfigFlags `embed:""`

	Out       string `help:"output directory, overrides output.path" default:"" type:"path" env:"RNBUNDLE_OUT"`
	Compress  bool   `help:"write zstd sidecars next to chunk files" default:"false" env:"RNBUNDLE_COMPRESS"`
	Telemetry bool   `help:"export build metrics and traces over OTLP" default:"false" env:"RNBUNDLE_TELEMETRY"`
}

func (b *BuildCmd) Run(ctx context.Context, globals *Globals) error {
	log := logger.Setup(globals.Debug).With().Str("build_id", uuid.NewString()).Logger()
	ctx = log.WithContext(ctx)

	cfg, err := b.load()
	if err != nil {
		return err
	}
	if b.Out != "" {
		out, err := filepath.Abs(b.Out)
		if err != nil {
			return fmt.Errorf("failed to resolve output directory: %w", err)
		}
		cfg.Output.Path = out
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	if b.Compress {
		cfg.Output.Compress = true
	}

	log.Info().Str("version", globals.Version).Str("config", b.Config).Msg("Starting build")

	if b.Telemetry {
		shutdown, err := telemetry.InitTelemetry(ctx, "rnbundle", globals.Version)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without metrics")
			shutdown = func(ctx context.Context) error { return nil }
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Failed to shutdown telemetry")
			}
		}()
	}

	res, err := bundle.Build(ctx, cfg)
	if err != nil {
		return fmt.Errorf("build failed: %w", err)
	}

	for _, s := range res.Stages {
		log.Debug().Str("stage", s.Name).Dur("duration", s.Duration).Msg("Stage timing")
	}
	for _, f := range res.Output.Files {
		log.Info().
			Str("file", f.Name).
			Str("chunk", f.Chunk).
			Str("size", humanSize(int64(f.Size))).
			Msg("Wrote chunk")
	}

	return nil
}
