// Package ledger persists migration runs and per-item outcomes with GORM, so
// a run can be audited and the legacy to new identifier mapping recovered
// after the process exits.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/hashicorp-forge/repomigrate/pkg/contentid"
	"github.com/hashicorp-forge/repomigrate/pkg/migration"
)

// Compile-time check that Ledger records migration results.
var _ migration.RunSink = (*Ledger)(nil)

// ErrRunNotFound is returned when a run does not exist.
var ErrRunNotFound = errors.New("run not found")

// Ledger stores runs and entries.
type Ledger struct {
	db     *gorm.DB
	logger hclog.Logger
}

// Open connects to the configured database and migrates the ledger schema.
func Open(cfg Config, log hclog.Logger) (*Ledger, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid ledger config: %w", err)
	}
	if log == nil {
		log = hclog.NewNullLogger()
	}

	var dialector gorm.Dialector
	switch cfg.Driver {
	case DriverPostgres:
		dialector = postgres.Open(cfg.DSN)
	default:
		dialector = sqlite.Open(cfg.DSN)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: NewGormLogger(log.Named("gorm")),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying SQL DB: %w", err)
	}
	maxOpen := cfg.MaxOpenConns
	if cfg.Driver == DriverSQLite {
		// One writer; also keeps ":memory:" databases on a single connection.
		maxOpen = 1
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.connMaxLifetime())

	log.Info("opened ledger",
		"driver", cfg.Driver,
		"max_open_conns", maxOpen,
		"max_idle_conns", cfg.MaxIdleConns,
	)

	return New(db, log)
}

// New wraps an open database and migrates the ledger schema.
func New(db *gorm.DB, log hclog.Logger) (*Ledger, error) {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	if err := db.AutoMigrate(ModelsToAutoMigrate()...); err != nil {
		return nil, fmt.Errorf("failed to migrate ledger schema: %w", err)
	}
	return &Ledger{db: db, logger: log.Named("ledger")}, nil
}

// DB returns the underlying database handle.
func (l *Ledger) DB() *gorm.DB {
	return l.db
}

// Close closes the database connection.
func (l *Ledger) Close() error {
	sqlDB, err := l.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying SQL DB: %w", err)
	}
	return sqlDB.Close()
}

// StartRun implements migration.RunSink.
func (l *Ledger) StartRun(ctx context.Context, runID, root string) error {
	id, err := uuid.Parse(runID)
	if err != nil {
		return fmt.Errorf("invalid run id %q: %w", runID, err)
	}
	run := Run{ID: id, Root: root, Status: RunStatusRunning}
	if err := l.db.WithContext(ctx).Create(&run).Error; err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	l.logger.Debug("run started", "run_id", runID, "root", root)
	return nil
}

// Record implements migration.Sink.
func (l *Ledger) Record(ctx context.Context, runID string, r migration.Result) error {
	id, err := uuid.Parse(runID)
	if err != nil {
		return fmt.Errorf("invalid run id %q: %w", runID, err)
	}
	entry := Entry{
		RunID:    id,
		Kind:     r.Kind.String(),
		Path:     r.Path,
		OldID:    r.OldID,
		NewID:    r.NewID,
		Success:  r.Success,
		Attempts: r.Attempts,
	}
	if r.Err != nil {
		entry.Error = r.Err.Error()
	}
	if err := l.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return fmt.Errorf("failed to record %s: %w", r.Path, err)
	}
	return nil
}

// FinishRun implements migration.RunSink.
func (l *Ledger) FinishRun(ctx context.Context, runID string, s migration.Summary) error {
	id, err := uuid.Parse(runID)
	if err != nil {
		return fmt.Errorf("invalid run id %q: %w", runID, err)
	}

	status := RunStatusSucceeded
	if s.Failed > 0 {
		status = RunStatusFailed
	}
	now := time.Now()

	res := l.db.WithContext(ctx).Model(&Run{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":      status,
		"finished_at": now,
		"succeeded":   s.Succeeded,
		"failed":      s.Failed,
		"attempts":    s.Attempts,
		"duration":    s.Duration.Milliseconds(),
	})
	if res.Error != nil {
		return fmt.Errorf("failed to finish run: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (l *Ledger) GetRun(ctx context.Context, runID string) (*Run, error) {
	id, err := uuid.Parse(runID)
	if err != nil {
		return nil, fmt.Errorf("invalid run id %q: %w", runID, err)
	}
	var run Run
	err = l.db.WithContext(ctx).First(&run, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return &run, nil
}

// Runs lists runs, newest first.
func (l *Ledger) Runs(ctx context.Context, limit int) ([]Run, error) {
	var runs []Run
	q := l.db.WithContext(ctx).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

// Entries lists the entries of a run in the order they were recorded.
func (l *Ledger) Entries(ctx context.Context, runID string) ([]Entry, error) {
	id, err := uuid.Parse(runID)
	if err != nil {
		return nil, fmt.Errorf("invalid run id %q: %w", runID, err)
	}
	var entries []Entry
	err = l.db.WithContext(ctx).Where("run_id = ?", id).Order("id ASC").Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	return entries, nil
}

// Mapping returns the legacy to new identifier mapping of successful
// entries of kind across all runs. A later run wins.
func (l *Ledger) Mapping(ctx context.Context, kind migration.ItemKind) (map[contentid.ID]contentid.ID, error) {
	var entries []Entry
	err := l.db.WithContext(ctx).
		Where("kind = ? AND success = ? AND old_id IS NOT NULL", kind.String(), true).
		Order("id ASC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load mapping: %w", err)
	}

	mapping := make(map[contentid.ID]contentid.ID, len(entries))
	for _, e := range entries {
		mapping[e.OldID] = e.NewID
	}
	return mapping, nil
}

// PoolStats holds database connection pool statistics.
type PoolStats struct {
	MaxOpenConnections int
	OpenConnections    int
	InUse              int
	Idle               int
	WaitCount          int64
	WaitDuration       time.Duration
}

// PoolStats returns connection pool statistics.
func (l *Ledger) PoolStats() (*PoolStats, error) {
	sqlDB, err := l.db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying SQL DB: %w", err)
	}
	stats := sqlDB.Stats()
	return &PoolStats{
		MaxOpenConnections: stats.MaxOpenConnections,
		OpenConnections:    stats.OpenConnections,
		InUse:              stats.InUse,
		Idle:               stats.Idle,
		WaitCount:          stats.WaitCount,
		WaitDuration:       stats.WaitDuration,
	}, nil
}
