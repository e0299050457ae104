package migrate

import (
	"context"
	"flag"
	"fmt"

	"github.com/hashicorp-forge/repomigrate/internal/cmd/base"
	"github.com/hashicorp-forge/repomigrate/pkg/migration"
)

// ItemCommand migrates a single module or collection directory.
type ItemCommand struct {
	*base.Command

	// Kind is migration.ModuleItem or migration.CollectionItem.
	Kind migration.ItemKind

	flags runFlags
}

func (c *ItemCommand) Synopsis() string {
	return fmt.Sprintf("Migrate a single %s directory", c.Kind)
}

func (c *ItemCommand) Help() string {
	switch c.Kind {
	case migration.CollectionItem:
		return `Usage: repomigrate collection [options] <collection-dir>

  Migrates every module in the collection directory concurrently, then
  rewrites and uploads the collection manifest. Nothing is uploaded for the
  collection itself when any module fails.` + c.Flags().Help()
	default:
		return `Usage: repomigrate module [options] <module-dir>

  Migrates the module's resources, then the module body.` + c.Flags().Help()
	}
}

func (c *ItemCommand) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet(c.Kind.String(), flag.ContinueOnError))
	c.flags.register(f)
	return f
}

func (c *ItemCommand) Run(args []string) int {
	logger, ui := c.Log, c.UI

	f := c.Flags()
	if err := f.Parse(args); err != nil {
		ui.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}
	if f.NArg() != 1 {
		ui.Error(fmt.Sprintf("expected exactly one %s directory", c.Kind))
		return 1
	}
	dir := f.Arg(0)

	s, err := c.flags.open(f, logger)
	if err != nil {
		ui.Error(err.Error())
		return 1
	}
	defer s.Close()

	ctx := context.Background()
	strategy := migration.Strategy(s.cfg.Migration.Strategy)

	var res migration.Result
	switch c.Kind {
	case migration.CollectionItem:
		res = s.migrator.MigrateCollection(ctx, dir, strategy)
	case migration.ModuleItem:
		res = s.migrator.MigrateModule(ctx, dir, strategy)
	default:
		ui.Error(fmt.Sprintf("unsupported item kind %s", c.Kind))
		return 1
	}

	report := s.migrator.Report()
	report.Finish()
	if err := c.flags.writeReport(report); err != nil {
		ui.Error(err.Error())
	}

	if !res.Success {
		ui.Error(fmt.Sprintf("%s %s failed: %v", c.Kind, dir, res.Err))
		return 1
	}
	ui.Output(fmt.Sprintf("%s -> %s", res.OldID, res.NewID))
	return 0
}
