package migration

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/singleflight"

	"github.com/hashicorp-forge/repomigrate/pkg/contentid"
	"github.com/hashicorp-forge/repomigrate/pkg/repository"
	"github.com/hashicorp-forge/repomigrate/pkg/sourcetree"
	"github.com/hashicorp-forge/repomigrate/pkg/workqueue"
)

// Sink receives every Result as it is produced. Sink failures are logged and
// never fail a migration.
type Sink interface {
	Record(ctx context.Context, runID string, result Result) error
}

// RunSink is implemented by sinks that also track the run itself.
type RunSink interface {
	Sink
	StartRun(ctx context.Context, runID, root string) error
	FinishRun(ctx context.Context, runID string, summary Summary) error
}

type handlerFunc func(ctx context.Context, item *WorkItem) Result

// Migrator migrates one content tree into one repository. A Migrator
// represents a single run; create a new one for each run.
type Migrator struct {
	tree   *sourcetree.Tree
	client repository.Client
	cfg    Config
	logger hclog.Logger
	sinks  []Sink

	runID    string
	report   *Report
	handlers map[ItemKind]handlerFunc

	// moduleSlots bounds collection member tasks across all collections.
	moduleSlots chan struct{}

	// forcedModules and migrated let a forced module referenced from several
	// places migrate once per run.
	forcedModules singleflight.Group
	mu            sync.Mutex
	migrated      map[contentid.ID]Result

	queue *workqueue.Queue[*WorkItem]
	pool  *workqueue.Pool[*WorkItem]
}

// Option is a functional option for creating a Migrator.
type Option func(*Migrator)

// WithTree sets the content tree to migrate.
func WithTree(tree *sourcetree.Tree) Option {
	return func(m *Migrator) {
		m.tree = tree
	}
}

// WithRepository sets the destination repository.
func WithRepository(client repository.Client) Option {
	return func(m *Migrator) {
		m.client = client
	}
}

// WithConfig sets the migration configuration.
func WithConfig(cfg Config) Option {
	return func(m *Migrator) {
		m.cfg = cfg
	}
}

// WithLogger sets the logger.
func WithLogger(logger hclog.Logger) Option {
	return func(m *Migrator) {
		m.logger = logger
	}
}

// WithSink adds a result sink.
func WithSink(sink Sink) Option {
	return func(m *Migrator) {
		if sink != nil {
			m.sinks = append(m.sinks, sink)
		}
	}
}

// WithRunID overrides the generated run identifier.
func WithRunID(id string) Option {
	return func(m *Migrator) {
		m.runID = id
	}
}

// NewMigrator creates a migrator. A tree and a repository are required.
func NewMigrator(opts ...Option) (*Migrator, error) {
	m := &Migrator{
		cfg:    DefaultConfig(),
		logger: hclog.NewNullLogger(),
		runID:  uuid.New().String(),
	}

	for _, opt := range opts {
		opt(m)
	}

	if m.tree == nil {
		return nil, fmt.Errorf("content tree is required")
	}
	if m.client == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if err := m.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid migration config: %w", err)
	}

	m.logger = m.logger.Named("migration").With("run_id", m.runID)
	m.report = NewReport(m.runID, m.tree.Root)
	m.moduleSlots = make(chan struct{}, m.cfg.ModuleConcurrency)
	m.migrated = make(map[contentid.ID]Result)
	m.handlers = map[ItemKind]handlerFunc{
		ResourceItem:   m.handleResource,
		ModuleItem:     m.handleModule,
		CollectionItem: m.handleCollection,
	}

	m.queue = workqueue.New[*WorkItem](m.cfg.QueueCapacity)
	m.pool = workqueue.NewPool(m.queue, m.cfg.Workers, m.dispatch,
		workqueue.WithLogger[*WorkItem](m.logger))

	return m, nil
}

// RunID returns the identifier of this run.
func (m *Migrator) RunID() string {
	return m.runID
}

// Report returns the report accumulated so far.
func (m *Migrator) Report() *Report {
	return m.report
}

// QueueStats returns the work queue counters.
func (m *Migrator) QueueStats() workqueue.Stats {
	return m.pool.Stats()
}

// Run enumerates the tree, submits every standalone resource, module, and
// collection to the worker pool, and waits for all of them. The returned
// error aggregates every failed item; the report is returned either way.
//
// Workers are started on first use and stay parked on the queue afterwards.
// Items already handed to a worker are not interrupted when ctx is done;
// enumeration stops submitting new ones.
func (m *Migrator) Run(ctx context.Context) (*Report, error) {
	m.logger.Info("starting migration",
		"root", m.tree.Root,
		"sharded", m.tree.Sharded,
		"strategy", m.cfg.Strategy,
		"workers", m.cfg.Workers,
	)
	m.startRun(ctx)

	m.pool.Start()
	submitErr := m.submitAll(ctx)
	m.pool.Wait()

	m.report.Finish()
	summary := m.report.Summary()
	m.finishRun(ctx, summary)

	var result *multierror.Error
	if submitErr != nil {
		result = multierror.Append(result, submitErr)
	}
	for _, r := range m.report.Failures() {
		result = multierror.Append(result, fmt.Errorf("%s %s: %w", r.Kind, r.Path, r.Err))
	}

	m.logger.Info("migration finished",
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"duration", summary.Duration,
	)
	return m.report, result.ErrorOrNil()
}

func (m *Migrator) submitAll(ctx context.Context) error {
	listings := []struct {
		kind ItemKind
		list func() ([]string, error)
	}{
		{ResourceItem, m.tree.Resources},
		{ModuleItem, m.tree.Modules},
		{CollectionItem, m.tree.Collections},
	}

	for _, l := range listings {
		dirs, err := l.list()
		if err != nil {
			return fmt.Errorf("failed to enumerate %ss: %w", l.kind, err)
		}
		m.logger.Debug("enumerated", "kind", l.kind, "count", len(dirs))

		for _, dir := range dirs {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("enumeration interrupted: %w", err)
			}
			m.pool.Submit(&WorkItem{
				Kind:     l.kind,
				Path:     dir,
				Strategy: m.cfg.Strategy,
				Config:   &m.cfg,
			})
		}
	}
	return nil
}

// dispatch routes a dequeued item to its handler. Tasks started by the pool
// are not cancellable, so they run under a background context.
func (m *Migrator) dispatch(label string, item *WorkItem) {
	handle, ok := m.handlers[item.Kind]
	if !ok {
		panic(fmt.Sprintf("%s: no handler for work item kind %s", label, item.Kind))
	}
	m.logger.Trace("dispatching", "worker", label, "item", item.String())
	handle(context.Background(), item)
}

func (m *Migrator) handleResource(ctx context.Context, item *WorkItem) Result {
	return m.MigrateResource(ctx, item.Path, item.Strategy)
}

func (m *Migrator) handleModule(ctx context.Context, item *WorkItem) Result {
	return m.MigrateModule(ctx, item.Path, item.Strategy)
}

func (m *Migrator) handleCollection(ctx context.Context, item *WorkItem) Result {
	return m.MigrateCollection(ctx, item.Path, item.Strategy)
}

// record adds a finished result to the report and every sink.
func (m *Migrator) record(ctx context.Context, r Result) Result {
	m.report.Add(r)

	if r.Success {
		m.logger.Info("migrated",
			"kind", r.Kind,
			"path", r.Path,
			"old_id", r.OldID.String(),
			"new_id", r.NewID.String(),
			"attempts", r.Attempts,
		)
	} else {
		m.logger.Error("migration failed",
			"kind", r.Kind,
			"path", r.Path,
			"attempts", r.Attempts,
			"error", r.Err,
		)
	}

	for _, s := range m.sinks {
		if err := s.Record(ctx, m.runID, r); err != nil {
			m.logger.Warn("failed to record result", "path", r.Path, "error", err)
		}
	}
	return r
}

func (m *Migrator) startRun(ctx context.Context) {
	for _, s := range m.sinks {
		if rs, ok := s.(RunSink); ok {
			if err := rs.StartRun(ctx, m.runID, m.tree.Root); err != nil {
				m.logger.Warn("failed to record run start", "error", err)
			}
		}
	}
}

func (m *Migrator) finishRun(ctx context.Context, summary Summary) {
	for _, s := range m.sinks {
		if rs, ok := s.(RunSink); ok {
			if err := rs.FinishRun(ctx, m.runID, summary); err != nil {
				m.logger.Warn("failed to record run finish", "error", err)
			}
		}
	}
}

// forcedID returns the identifier to force at the repository, or nil when a
// new one should be assigned.
func (m *Migrator) forcedID(legacy contentid.ID, strategy Strategy) *contentid.ID {
	if strategy != StrategyMigrateForced || legacy.IsZero() || !legacy.IsForced() {
		return nil
	}
	id := legacy
	return &id
}

// legacyID parses the identifier encoded in a directory name.
func legacyID(kind contentid.Kind, dir string) (contentid.ID, error) {
	name := filepath.Base(dir)
	id, err := contentid.ParseID(kind, name)
	if err != nil {
		return contentid.ID{}, &ValidationError{Field: kind.String() + " directory", Value: name, Err: err}
	}
	return id, nil
}
