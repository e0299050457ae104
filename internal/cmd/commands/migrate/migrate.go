package migrate

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mitchellh/cli"

	"github.com/hashicorp-forge/repomigrate/internal/cmd/base"
	"github.com/hashicorp-forge/repomigrate/pkg/migration"
)

// Command migrates a whole content tree.
type Command struct {
	*base.Command

	flags runFlags
}

func (c *Command) Synopsis() string {
	return "Migrate a content tree into the repository"
}

func (c *Command) Help() string {
	return `Usage: repomigrate migrate [options]

  Migrates every standalone resource, module, and collection under the
  content tree root. Collection manifests are rewritten to the new module
  identifiers. Exits non-zero when any item failed.` + c.Flags().Help()
}

func (c *Command) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("migrate", flag.ContinueOnError))
	c.flags.register(f)
	return f
}

func (c *Command) Run(args []string) int {
	logger, ui := c.Log, c.UI

	f := c.Flags()
	if err := f.Parse(args); err != nil {
		ui.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}

	s, err := c.flags.open(f, logger)
	if err != nil {
		ui.Error(err.Error())
		return 1
	}
	defer s.Close()

	if s.cfg.Source.Root == "" {
		ui.Error("a content tree root is required (-root or source.root)")
		return 1
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	report, runErr := s.migrator.Run(ctx)
	if err := c.flags.writeReport(report); err != nil {
		ui.Error(err.Error())
	}

	summarize(ui, s.migrator.RunID(), report.Summary())
	if runErr != nil {
		ui.Error(runErr.Error())
		return 1
	}
	return 0
}

func summarize(ui cli.Ui, runID string, s migration.Summary) {
	ui.Info("")
	ui.Info("=== Summary ===")
	ui.Info(fmt.Sprintf("Run:       %s", runID))
	ui.Info(fmt.Sprintf("Succeeded: %d", s.Succeeded))
	ui.Info(fmt.Sprintf("Failed:    %d", s.Failed))
	ui.Info(fmt.Sprintf("Attempts:  %d", s.Attempts))
	ui.Info(fmt.Sprintf("Duration:  %s", s.Duration))
}
