// Package migration moves a content tree of resources, modules, and
// collections into a remote repository.
//
// Standalone resources, modules, and collections are queued as work items
// and drained by a fixed worker pool. A collection fans out one task per
// member module, bounded by a limit shared across all collections, joins
// them, rewrites its manifest to the new module identifiers, and finally
// submits itself.
//
// Started tasks are never cancelled; a task runs to completion or to its
// retry ceiling. Failed migrations are not rolled back.
package migration

import (
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/hashicorp-forge/repomigrate/pkg/contentid"
)

// ItemKind is the variant of a work item.
type ItemKind int

const (
	ResourceItem ItemKind = iota + 1
	ModuleItem
	CollectionItem
)

func (k ItemKind) String() string {
	switch k {
	case ResourceItem:
		return "resource"
	case ModuleItem:
		return "module"
	case CollectionItem:
		return "collection"
	default:
		return fmt.Sprintf("ItemKind(%d)", int(k))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k ItemKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Strategy decides how destination identifiers are chosen.
type Strategy string

const (
	// StrategyCreateNew lets the repository assign a fresh identifier.
	StrategyCreateNew Strategy = "create"

	// StrategyMigrateForced asks the repository to honor legacy
	// identifiers in the forced range. Identifiers outside the range are
	// still created new.
	StrategyMigrateForced Strategy = "forced"
)

// State is a step of collection migration.
type State string

const (
	StateDiscovering State = "discovering"
	StateFanOut      State = "fan_out"
	StateJoining     State = "joining"
	StateFinalizing  State = "finalizing"
	StateDone        State = "done"
	StateFailed      State = "failed"
)

// Config holds the settings shared by every work item.
type Config struct {
	// MaxTries is the number of upload attempts before giving up (default: 3)
	MaxTries uint32

	// RetryDelay is the fixed pause between attempts (default: 1s)
	RetryDelay time.Duration

	// Verbose logs every attempt, not only retries
	Verbose bool

	// Workers is the size of the worker pool (default: 4)
	Workers int

	// QueueCapacity bounds the number of pending work items (default: 64)
	QueueCapacity int

	// ModuleConcurrency bounds concurrently migrating collection members
	// across all collections (default: 8)
	ModuleConcurrency int

	// Strategy is the identifier strategy (default: create)
	Strategy Strategy
}

// DefaultConfig returns the default migration configuration.
func DefaultConfig() Config {
	return Config{
		MaxTries:          3,
		RetryDelay:        time.Second,
		Workers:           4,
		QueueCapacity:     64,
		ModuleConcurrency: 8,
		Strategy:          StrategyCreateNew,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.MaxTries, validation.Required, validation.Min(uint32(1))),
		validation.Field(&c.RetryDelay, validation.Min(time.Duration(0))),
		validation.Field(&c.Workers, validation.Required, validation.Min(1)),
		validation.Field(&c.QueueCapacity, validation.Required, validation.Min(1)),
		validation.Field(&c.ModuleConcurrency, validation.Required, validation.Min(1)),
		validation.Field(&c.Strategy, validation.Required,
			validation.In(StrategyCreateNew, StrategyMigrateForced)),
	)
}

// WorkItem is one unit of migration work. It is created while enumerating a
// tree, consumed exactly once by a worker, and never mutated after it is
// submitted.
type WorkItem struct {
	Kind     ItemKind
	Path     string
	Strategy Strategy
	Config   *Config
}

func (w *WorkItem) String() string {
	return fmt.Sprintf("%s %s", w.Kind, w.Path)
}

// Result is the outcome of migrating one resource, module, or collection.
// Each Result is produced by exactly one task and read-only afterwards.
type Result struct {
	Kind     ItemKind
	Path     string
	OldID    contentid.ID
	NewID    contentid.ID
	Success  bool
	Attempts int
	Err      error
}
