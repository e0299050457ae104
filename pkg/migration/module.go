package migration

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/hashicorp-forge/repomigrate/pkg/contentid"
	"github.com/hashicorp-forge/repomigrate/pkg/repository"
)

// MigrateResource uploads one resource directory. Resource directory names
// that are not resource identifiers are migrated under a new identifier.
func (m *Migrator) MigrateResource(ctx context.Context, dir string, strategy Strategy) Result {
	res := Result{Kind: ResourceItem, Path: dir}
	if id, err := contentid.ParseID(contentid.KindResource, filepath.Base(dir)); err == nil {
		res.OldID = id
	}

	resource, err := m.tree.ReadResource(dir)
	if err != nil {
		res.Err = err
		return m.record(ctx, res)
	}
	m.logger.Debug("read resource",
		"path", dir,
		"filename", resource.Properties.Filename,
		"mime_type", resource.Properties.MimeType,
		"bytes", len(resource.Data),
	)

	rev, attempts, err := m.upload(ctx, contentid.KindResource, dir, m.forcedID(res.OldID, strategy), string(resource.Data))
	res.Attempts = attempts
	if err != nil {
		res.Err = err
		return m.record(ctx, res)
	}

	res.NewID = rev.ID
	res.Success = true
	return m.record(ctx, res)
}

// MigrateModule uploads a module's resources, then the module itself. The
// result maps the legacy module identifier to the new one.
//
// Under the forced strategy a module referenced from several places in the
// tree migrates once per run; later references share the first successful
// result and add no attempts.
func (m *Migrator) MigrateModule(ctx context.Context, dir string, strategy Strategy) Result {
	legacy, err := legacyID(contentid.KindModule, dir)
	if err != nil {
		return m.record(ctx, Result{Kind: ModuleItem, Path: dir, Err: err})
	}

	if m.forcedID(legacy, strategy) == nil {
		return m.migrateModule(ctx, dir, legacy, strategy)
	}

	owner := false
	v, _, _ := m.forcedModules.Do(legacy.String(), func() (interface{}, error) {
		if prev, ok := m.migratedModule(legacy); ok {
			return prev, nil
		}
		owner = true
		r := m.migrateModule(ctx, dir, legacy, strategy)
		if r.Success {
			m.mu.Lock()
			m.migrated[legacy] = r
			m.mu.Unlock()
		}
		return r, nil
	})
	res := v.(Result)
	if !owner {
		m.logger.Debug("reusing module result from another reference",
			"path", dir,
			"id", legacy.String(),
			"migrated_from", res.Path,
		)
		res.Path = dir
		res.Attempts = 0
	}
	return res
}

func (m *Migrator) migratedModule(id contentid.ID) (Result, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.migrated[id]
	return r, ok
}

func (m *Migrator) migrateModule(ctx context.Context, dir string, legacy contentid.ID, strategy Strategy) Result {
	res := Result{Kind: ModuleItem, Path: dir, OldID: legacy}
	forced := m.forcedID(legacy, strategy)

	resourceDirs, err := m.tree.ModuleResources(dir)
	if err != nil {
		res.Err = err
		return m.record(ctx, res)
	}
	for _, rd := range resourceDirs {
		r := m.MigrateResource(ctx, rd, strategy)
		res.Attempts += r.Attempts
		if !r.Success {
			res.Err = fmt.Errorf("failed to migrate resource %s: %w", filepath.Base(rd), r.Err)
			return m.record(ctx, res)
		}
	}

	body, err := m.tree.ReadModuleBody(dir)
	if err != nil {
		res.Err = err
		return m.record(ctx, res)
	}

	editLocation, attempts, err := m.editLocation(ctx, contentid.KindModule, dir, legacy, forced != nil, forced)
	res.Attempts += attempts
	if err != nil {
		res.Err = err
		return m.record(ctx, res)
	}

	rev, attempts, err := m.createVersion(ctx, contentid.KindModule, dir, editLocation, body)
	res.Attempts += attempts
	if err != nil {
		res.Err = err
		return m.record(ctx, res)
	}

	res.NewID = rev.ID
	res.Success = true
	return m.record(ctx, res)
}

// upload creates a fresh entity and stores body as its first version.
func (m *Migrator) upload(ctx context.Context, kind contentid.Kind, path string, forced *contentid.ID, body string) (repository.Revision, int, error) {
	editLocation, attempts, err := m.editLocation(ctx, kind, path, contentid.ID{}, false, forced)
	if err != nil {
		return repository.Revision{}, attempts, err
	}

	rev, more, err := m.createVersion(ctx, kind, path, editLocation, body)
	return rev, attempts + more, err
}

// editLocation returns where the next version of an entity goes. With lookup
// set, legacy may already be present at the repository from an earlier run
// or an earlier reference, in which case its edit location is reused.
// Otherwise a new entity is created.
func (m *Migrator) editLocation(ctx context.Context, kind contentid.Kind, path string, legacy contentid.ID, lookup bool, forced *contentid.ID) (string, int, error) {
	total := 0

	if lookup {
		var (
			existing repository.Revision
			found    bool
		)
		attempts, err := m.retry("look up "+kind.String(), path, func() error {
			rev, err := m.client.GetVersion(ctx, legacy, contentid.Latest())
			switch {
			case err == nil:
				existing, found = rev, true
				return nil
			case repository.IsAbsent(err):
				if errors.Is(err, repository.ErrNotMigrated) {
					m.logger.Debug("not migrated yet", "kind", kind.String(), "id", legacy.String())
				}
				return nil
			default:
				return &TransientError{Op: "look up " + kind.String(), Err: err}
			}
		})
		total += attempts
		if err != nil {
			return "", total, err
		}
		if found {
			m.logger.Info("adding version to existing entity",
				"kind", kind.String(),
				"id", existing.ID.String(),
				"latest", existing.Version.String(),
			)
			return existing.EditLocation, total, nil
		}
	}

	var entity repository.Entity
	attempts, err := m.retry("create "+kind.String(), path, func() error {
		e, err := m.client.CreateEntity(ctx, kind, forced)
		if err != nil {
			return &TransientError{Op: "create " + kind.String(), Err: err}
		}
		entity = e
		return nil
	})
	total += attempts
	return entity.EditLocation, total, err
}

func (m *Migrator) createVersion(ctx context.Context, kind contentid.Kind, path, editLocation, body string) (repository.Revision, int, error) {
	var rev repository.Revision
	attempts, err := m.retry("upload "+kind.String(), path, func() error {
		r, err := m.client.CreateVersion(ctx, editLocation, body)
		if err != nil {
			return &TransientError{Op: "upload " + kind.String(), Err: err}
		}
		rev = r
		return nil
	})
	return rev, attempts, err
}
