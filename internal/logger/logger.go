package logger

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
)

func Setup(dev bool) zerolog.Logger {
	var logger zerolog.Logger
	level := zerolog.InfoLevel
	if dev {
		level = zerolog.DebugLevel
	}

	logger = zerolog.New(os.Stderr).Level(level).With().Timestamp().Caller().Logger()

	if dev {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr, FormatTimestamp: func(i any) string {
			return time.Now().Format(time.RFC3339)
		}}).Level(level).With().Stack().Logger()
	}

	return logger
}

// Stage runs fn with a context logger carrying the stage name and logs the
// outcome with its duration.
func Stage(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	started := time.Now()

	ctx = zerolog.Ctx(ctx).With().
		Str("stage", name).
		Logger().WithContext(ctx)

	err := fn(ctx)
	if err != nil {
		zerolog.Ctx(ctx).Error().
			Err(err).
			Dur("duration", time.Since(started)).
			Msg("build stage failed")

		return err
	}

	zerolog.Ctx(ctx).Debug().
		Dur("duration", time.Since(started)).
		Msg("build stage finished")

	return nil
}
