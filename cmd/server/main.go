package main

import (
	"context"

	"github.com/alecthomas/kong"
	"github.com/cernio/cernio/cmd/server/internal/commands"
	"github.com/joho/godotenv"
)

var (
	version = "dev"
	cli     struct {
		Debug   bool `help:"Enable debug mode."`
		Version kong.VersionFlag

		Server   commands.ServerCmd  `cmd:"" default:"1" help:"Start the API server"`
		Migrate  commands.MigrateCmd `cmd:"" help:"Apply database migrations"`
		Seed     commands.SeedCmd    `cmd:"" help:"Register operators and customers from a YAML file"`
		Sessions struct {
			Prune commands.PruneSessionsCmd `cmd:"" help:"Delete expired sessions"`
		} `cmd:"" help:"Manage refresh-token sessions"`
		Principal struct {
			SetActive commands.SetActiveCmd `cmd:"" name:"set-active" help:"Activate or deactivate a principal"`
		} `cmd:"" help:"Manage principals"`
	}
)

func main() {
	// Local development settings; a missing .env file is not an error
	_ = godotenv.Load()

	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{Debug: cli.Debug, Version: version})
	cmd.FatalIfErrorf(err)
}
