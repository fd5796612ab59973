package main

import (
	"context"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/wolfeidau/rnbundle/cmd/rnbundle/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Build   commands.BuildCmd `cmd:"" help:"Build the bundle"`
		Stats   commands.StatsCmd `cmd:"" help:"Plan the build and print the chunk table"`
		Init    commands.InitCmd  `cmd:"" help:"Write the default configuration"`
		Debug   bool              `help:"Enable debug mode." env:"RNBUNDLE_DEBUG"`
		Version kong.VersionFlag
	}
)

func main() {
	// a missing .env is not an error
	_ = godotenv.Load()

	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Name("rnbundle"),
		kong.Description("Bundle and code-split React Native for web applications."),
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{Debug: cli.Debug, Version: version})
	cmd.FatalIfErrorf(err)
}
