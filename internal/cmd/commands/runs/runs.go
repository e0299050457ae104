package runs

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/hashicorp-forge/repomigrate/internal/cmd/base"
	"github.com/hashicorp-forge/repomigrate/internal/config"
	"github.com/hashicorp-forge/repomigrate/pkg/ledger"
)

// Command lists runs recorded in the ledger, or the entries of one run.
type Command struct {
	*base.Command

	flagConfig string
	flagLimit  int
	flagFailed bool
}

func (c *Command) Synopsis() string {
	return "List migration runs recorded in the ledger"
}

func (c *Command) Help() string {
	return `Usage: repomigrate runs [options] [run-id]

  Without arguments, lists the most recent runs. With a run ID, lists the
  items migrated during that run.` + c.Flags().Help()
}

func (c *Command) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("runs", flag.ContinueOnError))
	f.StringVar(&c.flagConfig, "config", "", "(Required) Path to an HCL config file with a ledger block")
	f.IntVar(&c.flagLimit, "limit", 20, "Maximum number of runs to list")
	f.BoolVar(&c.flagFailed, "failed", false, "Only list failed items of a run")
	return f
}

func (c *Command) Run(args []string) int {
	logger, ui := c.Log, c.UI

	f := c.Flags()
	if err := f.Parse(args); err != nil {
		ui.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}
	if c.flagConfig == "" {
		ui.Error("config flag is required")
		return 1
	}

	cfg, err := config.NewConfig(c.flagConfig)
	if err != nil {
		ui.Error(err.Error())
		return 1
	}
	if cfg.Ledger == nil {
		ui.Error("config has no ledger block")
		return 1
	}

	l, err := ledger.Open(*cfg.Ledger, logger)
	if err != nil {
		ui.Error(fmt.Sprintf("error opening ledger: %v", err))
		return 1
	}
	defer l.Close()

	ctx := context.Background()
	if f.NArg() == 0 {
		runs, err := l.Runs(ctx, c.flagLimit)
		if err != nil {
			ui.Error(err.Error())
			return 1
		}
		for _, r := range runs {
			ui.Output(fmt.Sprintf("%s  %-9s  ok=%d failed=%d  %s  %s",
				r.ID, r.Status, r.Succeeded, r.Failed,
				r.CreatedAt.Format(time.RFC3339), r.Root))
		}
		return 0
	}

	entries, err := l.Entries(ctx, f.Arg(0))
	if err != nil {
		ui.Error(err.Error())
		return 1
	}
	for _, e := range entries {
		if c.flagFailed && e.Success {
			continue
		}
		line := fmt.Sprintf("%-10s %-8s -> %-8s tries=%d  %s", e.Kind, e.OldID, e.NewID, e.Attempts, e.Path)
		if e.Error != "" {
			line += "  error: " + e.Error
		}
		ui.Output(line)
	}
	return 0
}
