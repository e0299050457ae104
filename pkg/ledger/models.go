package ledger

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/hashicorp-forge/repomigrate/pkg/contentid"
)

const (
	RunStatusRunning   = "running"
	RunStatusSucceeded = "succeeded"
	RunStatusFailed    = "failed"
)

// Run is one migration of a content tree.
type Run struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	Root       string     `gorm:"type:varchar(1024);not null" json:"root"`
	Status     string     `gorm:"type:varchar(20);not null;default:'running';index:idx_runs_status" json:"status"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`

	Succeeded int   `json:"succeeded"`
	Failed    int   `json:"failed"`
	Attempts  int   `json:"attempts"`
	Duration  int64 `json:"durationMs"`
}

// TableName specifies the table name.
func (Run) TableName() string {
	return "migration_runs"
}

// BeforeCreate hook to ensure ID and Status are set.
func (r *Run) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.Status == "" {
		r.Status = RunStatusRunning
	}
	return nil
}

// Entry is the outcome of migrating one item during a run.
type Entry struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"createdAt"`

	RunID uuid.UUID `gorm:"type:uuid;not null;index:idx_entries_run" json:"runId"`
	Kind  string    `gorm:"type:varchar(20);not null;index:idx_entries_kind" json:"kind"`
	Path  string    `gorm:"type:varchar(1024);not null" json:"path"`

	// Identifiers are stored in their external form, e.g. "m1234".
	OldID contentid.ID `gorm:"type:varchar(32);index:idx_entries_old_id" json:"oldId"`
	NewID contentid.ID `gorm:"type:varchar(32)" json:"newId"`

	Success  bool   `gorm:"not null" json:"success"`
	Attempts int    `json:"attempts"`
	Error    string `gorm:"type:text" json:"error,omitempty"`
}

// TableName specifies the table name.
func (Entry) TableName() string {
	return "migration_entries"
}

// ModelsToAutoMigrate lists the ledger tables.
func ModelsToAutoMigrate() []interface{} {
	return []interface{}{
		&Run{},
		&Entry{},
	}
}
