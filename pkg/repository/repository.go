// Package repository defines the client contract for the remote content
// repository that migrated modules, collections, and resources land in.
package repository

import (
	"context"
	"errors"

	"github.com/hashicorp-forge/repomigrate/pkg/contentid"
)

var (
	// ErrNotFound is returned by GetVersion when no such entity or version
	// exists at the repository.
	ErrNotFound = errors.New("not found")

	// ErrNotMigrated is returned by GetVersion when the lookup failed for an
	// identifier in the forced range: the entity may still exist on the
	// legacy system and simply has not been migrated yet.
	ErrNotMigrated = errors.New("not migrated yet")

	// ErrConflict is returned by CreateEntity when a forced identifier is
	// already taken.
	ErrConflict = errors.New("identifier already in use")

	// ErrInvalidForcedID is returned by CreateEntity when a forced identifier
	// is of another kind or outside the forced range.
	ErrInvalidForcedID = errors.New("invalid forced identifier")
)

// Entity is a newly created, still empty repository entity.
type Entity struct {
	ID           contentid.ID
	EditLocation string
}

// Revision is one stored version of an entity.
type Revision struct {
	ID           contentid.ID
	Version      contentid.Version
	EditLocation string
}

// Client is the narrow create/version protocol the migrator relies on.
// Errors other than the sentinels above are opaque I/O failures.
type Client interface {
	// CreateEntity creates an entity of kind. When forced is non-nil the
	// repository is asked to honor that legacy identifier verbatim.
	CreateEntity(ctx context.Context, kind contentid.Kind, forced *contentid.ID) (Entity, error)

	// CreateVersion stores body as the newest version at editLocation.
	CreateVersion(ctx context.Context, editLocation, body string) (Revision, error)

	// GetVersion fetches a version (or the latest one) of an entity.
	GetVersion(ctx context.Context, id contentid.ID, version contentid.Version) (Revision, error)
}

// NotFoundFor returns ErrNotMigrated for forced-range identifiers and
// ErrNotFound otherwise. Client implementations use it to classify failed
// lookups.
func NotFoundFor(id contentid.ID) error {
	if id.IsForced() {
		return ErrNotMigrated
	}
	return ErrNotFound
}

// IsAbsent reports whether err means the entity does not exist yet at the
// repository, whether as a plain miss or as a not-yet-migrated legacy id.
func IsAbsent(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrNotMigrated)
}
