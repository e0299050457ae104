package cmd

import (
	"bufio"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/cli"

	"github.com/hashicorp-forge/repomigrate/internal/version"
)

// Main runs the CLI with the given arguments and returns the exit code.
func Main(args []string) int {
	cliName := filepath.Base(args[0])

	log := hclog.New(&hclog.LoggerOptions{
		Name:  cliName,
		Level: hclog.Info,
	})

	if len(args) == 2 &&
		(args[1] == "-version" ||
			args[1] == "-v") {
		args = []string{cliName, "version"}
	}

	ui := &cli.BasicUi{
		Reader:      bufio.NewReader(os.Stdin),
		Writer:      os.Stdout,
		ErrorWriter: os.Stderr,
	}

	initCommands(log, ui)

	c := &cli.CLI{
		Name:     cliName,
		Args:     args[1:],
		Version:  version.Version,
		Commands: Commands,
	}

	exitCode, err := c.Run()
	if err != nil {
		ui.Error(err.Error())
		return 1
	}

	return exitCode
}
