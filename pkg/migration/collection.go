package migration

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/hashicorp-forge/repomigrate/pkg/contentid"
)

// MigrateCollection migrates every member module concurrently, waits for all
// of them, and only when every one succeeded rewrites the manifest and
// uploads the collection. A single failed module aborts the collection;
// modules that did migrate are left in place.
func (m *Migrator) MigrateCollection(ctx context.Context, dir string, strategy Strategy) Result {
	res := Result{Kind: CollectionItem, Path: dir}
	logger := m.logger.With("collection", dir)
	state := StateDiscovering
	transition := func(next State) {
		logger.Debug("collection state", "from", state, "to", next)
		state = next
	}
	fail := func(err error) Result {
		transition(StateFailed)
		res.Err = err
		return m.record(ctx, res)
	}

	legacy, err := legacyID(contentid.KindCollection, dir)
	if err != nil {
		return fail(err)
	}
	res.OldID = legacy

	moduleDirs, err := m.tree.CollectionModules(dir)
	if err != nil {
		return fail(err)
	}

	transition(StateFanOut)
	results := make([]Result, len(moduleDirs))
	var wg sync.WaitGroup
	for i, md := range moduleDirs {
		wg.Add(1)
		go func(i int, md string) {
			defer wg.Done()
			m.moduleSlots <- struct{}{}
			defer func() { <-m.moduleSlots }()
			results[i] = m.MigrateModule(ctx, md, strategy)
		}(i, md)
	}

	transition(StateJoining)
	wg.Wait()

	mapping := make(map[contentid.ID]contentid.ID, len(results))
	var failed []Result
	var merr *multierror.Error
	for _, r := range results {
		res.Attempts += r.Attempts
		if !r.Success {
			failed = append(failed, r)
			merr = multierror.Append(merr, fmt.Errorf("%s: %w", r.Path, r.Err))
			continue
		}
		mapping[r.OldID] = r.NewID
	}
	if len(failed) > 0 {
		return fail(&CollectionError{Path: dir, Failed: failed, Err: merr.ErrorOrNil()})
	}

	transition(StateFinalizing)
	manifest, err := m.tree.ReadManifest(dir)
	if err != nil {
		return fail(err)
	}
	manifest = RewriteManifest(manifest, mapping)

	editLocation, attempts, err := m.editLocation(ctx, contentid.KindCollection, dir, legacy, legacy.IsForced(), m.forcedID(legacy, strategy))
	res.Attempts += attempts
	if err != nil {
		return fail(err)
	}

	rev, attempts, err := m.createVersion(ctx, contentid.KindCollection, dir, editLocation, manifest)
	res.Attempts += attempts
	if err != nil {
		return fail(err)
	}

	transition(StateDone)
	res.NewID = rev.ID
	res.Success = true
	return m.record(ctx, res)
}
