package migrate

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/afero"

	"github.com/hashicorp-forge/repomigrate/internal/cmd/base"
	"github.com/hashicorp-forge/repomigrate/internal/config"
	"github.com/hashicorp-forge/repomigrate/pkg/events"
	"github.com/hashicorp-forge/repomigrate/pkg/ledger"
	"github.com/hashicorp-forge/repomigrate/pkg/migration"
	"github.com/hashicorp-forge/repomigrate/pkg/repository"
	"github.com/hashicorp-forge/repomigrate/pkg/repository/atompub"
	"github.com/hashicorp-forge/repomigrate/pkg/sourcetree"
)

// runFlags are the flags shared by the migrate, module, and collection
// commands. Explicitly set flags override the config file.
type runFlags struct {
	config     string
	root       string
	sharded    bool
	strategy   string
	workers    int
	maxTries   uint
	retryDelay time.Duration
	verbose    bool
	dryRun     bool
	report     string
}

func (r *runFlags) register(f *base.FlagSet) {
	f.StringVar(&r.config, "config", "", "Path to an HCL config file")
	f.StringVar(&r.root, "root", "", "Root of the content tree (overrides source.root)")
	f.BoolVar(&r.sharded, "sharded", false, "The tree uses 1000 numbered shard directories")
	f.StringVar(&r.strategy, "strategy", "", `Identifier strategy: "create" or "forced"`)
	f.IntVar(&r.workers, "workers", 0, "Number of pool workers")
	f.UintVar(&r.maxTries, "max-tries", 0, "Upload attempts before giving up")
	f.DurationVar(&r.retryDelay, "retry-delay", 0, "Pause between upload attempts")
	f.BoolVar(&r.verbose, "verbose", false, "Log every upload attempt")
	f.BoolVar(&r.dryRun, "dry-run", false, "Migrate into an in-memory repository and publish no events")
	f.StringVar(&r.report, "report", "", "Write a YAML run report to this path")
}

// newRepository returns the AtomPub client for the configured repository,
// or an in-memory repository for dry runs and when none is configured.
func newRepository(cfg *config.Config, dryRun bool, log hclog.Logger) (repository.Client, error) {
	switch {
	case dryRun:
		log.Info("dry run, migrating into memory")
		return repository.NewMemory(), nil
	case cfg.Repository == nil:
		log.Warn("no repository configured, migrating into memory")
		return repository.NewMemory(), nil
	}

	client, err := atompub.NewClient(cfg.Repository, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create repository client: %w", err)
	}
	return client, nil
}

// session holds everything a migration command builds from its flags.
type session struct {
	cfg      *config.Config
	migrator *migration.Migrator
	closers  []func()
}

func (s *session) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// open loads the config, applies flag overrides, and wires the migrator.
func (r *runFlags) open(f *base.FlagSet, log hclog.Logger) (*session, error) {
	cfg, err := config.NewConfig(r.config)
	if err != nil {
		return nil, err
	}

	if f.IsSet("root") {
		cfg.Source.Root = r.root
	}
	if f.IsSet("sharded") {
		cfg.Source.Sharded = r.sharded
	}
	m := cfg.Migration
	if f.IsSet("strategy") {
		m.Strategy = r.strategy
	}
	if f.IsSet("workers") {
		m.Workers = r.workers
	}
	if f.IsSet("max-tries") {
		m.MaxTries = uint32(r.maxTries)
	}
	if f.IsSet("retry-delay") {
		m.RetryDelay = r.retryDelay.String()
	}
	if f.IsSet("verbose") {
		m.Verbose = r.verbose
	}

	mc, err := cfg.MigrationConfig()
	if err != nil {
		return nil, fmt.Errorf("invalid migration settings: %w", err)
	}

	log.SetLevel(hclog.LevelFromString(cfg.LogLevel))
	if mc.Verbose {
		log.SetLevel(hclog.Debug)
	}

	s := &session{cfg: cfg}
	opts := []migration.Option{
		migration.WithTree(sourcetree.New(afero.NewOsFs(), cfg.Source.Root, cfg.Source.Sharded)),
		migration.WithConfig(mc),
		migration.WithLogger(log),
	}

	client, err := newRepository(cfg, r.dryRun, log)
	if err != nil {
		return nil, err
	}
	opts = append(opts, migration.WithRepository(client))

	if cfg.Ledger != nil {
		l, err := ledger.Open(*cfg.Ledger, log)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to open ledger: %w", err)
		}
		s.closers = append(s.closers, func() { _ = l.Close() })
		opts = append(opts, migration.WithSink(l))
	}

	if cfg.Events != nil && !r.dryRun {
		p, err := events.NewPublisher(*cfg.Events, log)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to create event publisher: %w", err)
		}
		s.closers = append(s.closers, p.Close)
		opts = append(opts, migration.WithSink(p))
	}

	s.migrator, err = migration.NewMigrator(opts...)
	if err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// writeReport writes the YAML report when -report was given.
func (r *runFlags) writeReport(report *migration.Report) error {
	if r.report == "" {
		return nil
	}
	fs := afero.NewOsFs()
	f, err := fs.Create(r.report)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	defer f.Close()
	return report.WriteYAML(f)
}
