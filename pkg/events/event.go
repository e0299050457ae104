// Package events publishes migration progress to Kafka or Redpanda so other
// systems can follow a run as it happens.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/hashicorp-forge/repomigrate/pkg/contentid"
	"github.com/hashicorp-forge/repomigrate/pkg/migration"
)

// Type is the kind of event.
type Type string

const (
	TypeRunStarted   Type = "run_started"
	TypeItemMigrated Type = "item_migrated"
	TypeItemFailed   Type = "item_failed"
	TypeRunFinished  Type = "run_finished"
)

// Event is the message published for each step of a run.
type Event struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	RunID     string    `json:"run_id"`
	Timestamp time.Time `json:"timestamp"`

	// Item fields, set for item events
	Kind     string       `json:"kind,omitempty"`
	Path     string       `json:"path,omitempty"`
	OldID    contentid.ID `json:"old_id,omitempty"`
	NewID    contentid.ID `json:"new_id,omitempty"`
	Attempts int          `json:"attempts,omitempty"`
	Error    string       `json:"error,omitempty"`

	// Run fields
	Root    string             `json:"root,omitempty"`
	Summary *migration.Summary `json:"summary,omitempty"`
}

func newEvent(typ Type, runID string) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      typ,
		RunID:     runID,
		Timestamp: time.Now().UTC(),
	}
}

// ResultEvent builds the event for a migration result.
func ResultEvent(runID string, r migration.Result) *Event {
	typ := TypeItemMigrated
	if !r.Success {
		typ = TypeItemFailed
	}
	e := newEvent(typ, runID)
	e.Kind = r.Kind.String()
	e.Path = r.Path
	e.OldID = r.OldID
	e.NewID = r.NewID
	e.Attempts = r.Attempts
	if r.Err != nil {
		e.Error = r.Err.Error()
	}
	return e
}

// partitionKey keeps every event of a run on one partition, in order.
func (e *Event) partitionKey() []byte {
	return []byte(e.RunID)
}
