package cmd

import (
	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/cli"

	"github.com/hashicorp-forge/repomigrate/internal/cmd/base"
	"github.com/hashicorp-forge/repomigrate/internal/cmd/commands/key"
	"github.com/hashicorp-forge/repomigrate/internal/cmd/commands/migrate"
	"github.com/hashicorp-forge/repomigrate/internal/cmd/commands/runs"
	"github.com/hashicorp-forge/repomigrate/internal/cmd/commands/version"
	"github.com/hashicorp-forge/repomigrate/pkg/migration"
)

// Commands is the mapping of all available repomigrate commands.
var Commands map[string]cli.CommandFactory

func initCommands(log hclog.Logger, ui cli.Ui) {
	b := base.NewCommand(log, ui)

	Commands = map[string]cli.CommandFactory{
		"migrate": func() (cli.Command, error) {
			return &migrate.Command{Command: b}, nil
		},
		"module": func() (cli.Command, error) {
			return &migrate.ItemCommand{Command: b, Kind: migration.ModuleItem}, nil
		},
		"collection": func() (cli.Command, error) {
			return &migrate.ItemCommand{Command: b, Kind: migration.CollectionItem}, nil
		},
		"key": func() (cli.Command, error) {
			return &key.Command{Command: b}, nil
		},
		"key encode": func() (cli.Command, error) {
			return &key.EncodeCommand{Command: b}, nil
		},
		"key decode": func() (cli.Command, error) {
			return &key.DecodeCommand{Command: b}, nil
		},
		"runs": func() (cli.Command, error) {
			return &runs.Command{Command: b}, nil
		},
		"version": func() (cli.Command, error) {
			return &version.Command{Command: b}, nil
		},
	}
}
