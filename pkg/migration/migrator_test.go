package migration

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashicorp-forge/repomigrate/pkg/contentid"
	"github.com/hashicorp-forge/repomigrate/pkg/repository"
	"github.com/hashicorp-forge/repomigrate/pkg/sourcetree"
)

var errUnavailable = errors.New("service unavailable")

func writeFile(t *testing.T, fs afero.Fs, p, content string) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fs, p, []byte(content), 0o644))
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.RetryDelay = time.Millisecond
	cfg.Workers = 2
	cfg.QueueCapacity = 4
	return cfg
}

func newTestMigrator(t *testing.T, fs afero.Fs, client repository.Client, cfg Config, opts ...Option) *Migrator {
	t.Helper()
	opts = append([]Option{
		WithTree(sourcetree.New(fs, "/corpus", false)),
		WithRepository(client),
		WithConfig(cfg),
	}, opts...)
	m, err := NewMigrator(opts...)
	require.NoError(t, err)
	return m
}

func moduleID(n uint64) contentid.ID {
	return contentid.NewID(contentid.KindModule, n)
}

func collectionID(n uint64) contentid.ID {
	return contentid.NewID(contentid.KindCollection, n)
}

// recordingSink captures results and run events.
type recordingSink struct {
	mu       sync.Mutex
	results  []Result
	started  []string
	finished []Summary
}

func (s *recordingSink) Record(_ context.Context, _ string, r Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, r)
	return nil
}

func (s *recordingSink) StartRun(_ context.Context, runID, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = append(s.started, runID)
	return nil
}

func (s *recordingSink) FinishRun(_ context.Context, _ string, summary Summary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finished = append(s.finished, summary)
	return nil
}

// concurrencyClient tracks how many CreateVersion calls overlap.
type concurrencyClient struct {
	*repository.Memory
	active  int32
	highest int32
}

func (c *concurrencyClient) CreateVersion(ctx context.Context, editLocation, body string) (repository.Revision, error) {
	n := atomic.AddInt32(&c.active, 1)
	for {
		h := atomic.LoadInt32(&c.highest)
		if n <= h || atomic.CompareAndSwapInt32(&c.highest, h, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	defer atomic.AddInt32(&c.active, -1)
	return c.Memory.CreateVersion(ctx, editLocation, body)
}

func TestNewMigrator(t *testing.T) {
	tree := sourcetree.New(afero.NewMemMapFs(), "/corpus", false)
	repo := repository.NewMemory()

	tests := []struct {
		name    string
		opts    []Option
		wantErr string
	}{
		{
			name:    "missing tree",
			opts:    []Option{WithRepository(repo)},
			wantErr: "content tree is required",
		},
		{
			name:    "missing repository",
			opts:    []Option{WithTree(tree)},
			wantErr: "repository is required",
		},
		{
			name:    "invalid config",
			opts:    []Option{WithTree(tree), WithRepository(repo), WithConfig(Config{})},
			wantErr: "invalid migration config",
		},
		{
			name: "valid",
			opts: []Option{WithTree(tree), WithRepository(repo), WithRunID("run-1")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewMigrator(tt.opts...)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "run-1", m.RunID())
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "zero delay", mutate: func(c *Config) { c.RetryDelay = 0 }},
		{name: "no tries", mutate: func(c *Config) { c.MaxTries = 0 }, wantErr: true},
		{name: "no workers", mutate: func(c *Config) { c.Workers = 0 }, wantErr: true},
		{name: "negative delay", mutate: func(c *Config) { c.RetryDelay = -time.Second }, wantErr: true},
		{name: "unknown strategy", mutate: func(c *Config) { c.Strategy = "merge" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestMigrateModule(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/corpus/modules/m12/index.cnxml", "<document>twelve</document>")
	writeFile(t, fs, "/corpus/modules/m12/resources/r3/resource_properties.txt", "filename=fig.png\nmimeType=image/png\n")
	writeFile(t, fs, "/corpus/modules/m12/resources/r3/resource_data", "PNG")

	repo := repository.NewMemory()
	m := newTestMigrator(t, fs, repo, testConfig())

	res := m.MigrateModule(context.Background(), "/corpus/modules/m12", StrategyCreateNew)
	require.True(t, res.Success, "error: %v", res.Err)
	assert.Equal(t, moduleID(12), res.OldID)
	assert.Equal(t, moduleID(contentid.ForcedThreshold), res.NewID)
	assert.Equal(t, 4, res.Attempts)

	body, ok := repo.Body(res.NewID, contentid.Latest())
	require.True(t, ok)
	assert.Equal(t, "<document>twelve</document>", body)

	resources := repo.IDs(contentid.KindResource)
	require.Len(t, resources, 1)
	data, ok := repo.Body(resources[0], contentid.NewVersion(1))
	require.True(t, ok)
	assert.Equal(t, "PNG", data)
}

func TestMigrateModule_ForcedStrategy(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/corpus/modules/m5/index.cnxml", "five")

	t.Run("keeps legacy id", func(t *testing.T) {
		repo := repository.NewMemory()
		m := newTestMigrator(t, fs, repo, testConfig())

		res := m.MigrateModule(context.Background(), "/corpus/modules/m5", StrategyMigrateForced)
		require.True(t, res.Success, "error: %v", res.Err)
		assert.Equal(t, moduleID(5), res.NewID)
	})

	t.Run("conflict is not retried", func(t *testing.T) {
		repo := repository.NewMemory()
		forced := moduleID(5)
		_, err := repo.CreateEntity(context.Background(), contentid.KindModule, &forced)
		require.NoError(t, err)

		m := newTestMigrator(t, fs, repo, testConfig())
		res := m.MigrateModule(context.Background(), "/corpus/modules/m5", StrategyMigrateForced)
		require.False(t, res.Success)
		assert.True(t, errors.Is(res.Err, repository.ErrConflict))
		assert.Equal(t, 2, res.Attempts, "one lookup and one create")
		assert.Equal(t, 2, repo.Calls(repository.OpCreateEntity))
	})

	t.Run("refused forced id is not retried", func(t *testing.T) {
		repo := repository.NewMemory()
		repo.SetFault(func(req repository.Request) error {
			if req.Op == repository.OpCreateEntity {
				return fmt.Errorf("%w: %s", repository.ErrInvalidForcedID, req.Forced)
			}
			return nil
		})

		m := newTestMigrator(t, fs, repo, testConfig())
		res := m.MigrateModule(context.Background(), "/corpus/modules/m5", StrategyMigrateForced)
		require.False(t, res.Success)
		assert.True(t, errors.Is(res.Err, repository.ErrInvalidForcedID))

		var exhausted *ExhaustedError
		assert.False(t, errors.As(res.Err, &exhausted))
		assert.Equal(t, 1, repo.Calls(repository.OpCreateEntity))
	})

	t.Run("adds a version to a module from an earlier run", func(t *testing.T) {
		repo := repository.NewMemory()
		forced := moduleID(5)
		entity, err := repo.CreateEntity(context.Background(), contentid.KindModule, &forced)
		require.NoError(t, err)
		_, err = repo.CreateVersion(context.Background(), entity.EditLocation, "old five")
		require.NoError(t, err)

		m := newTestMigrator(t, fs, repo, testConfig())
		res := m.MigrateModule(context.Background(), "/corpus/modules/m5", StrategyMigrateForced)
		require.True(t, res.Success, "error: %v", res.Err)
		assert.Equal(t, forced, res.NewID)

		rev, err := repo.GetVersion(context.Background(), forced, contentid.Latest())
		require.NoError(t, err)
		assert.Equal(t, uint32(2), rev.Version.Ordinal())
		assert.Equal(t, 1, repo.Calls(repository.OpCreateEntity))
	})
}

func TestMigrateModule_SharedAcrossCollections(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeCollection(t, fs, "/corpus/collections/col1", []string{"m1", "m2"})
	writeCollection(t, fs, "/corpus/collections/col2", []string{"m1", "m3"})
	writeFile(t, fs, "/corpus/modules/m1/index.cnxml", "<document>m1</document>")

	repo := repository.NewMemory()
	m := newTestMigrator(t, fs, repo, testConfig())

	report, err := m.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Summary().Failed)

	assert.Len(t, repo.IDs(contentid.KindCollection), 2)
	assert.Equal(t, []contentid.ID{moduleID(300000), moduleID(300001), moduleID(300002), moduleID(300003), moduleID(300004)},
		repo.IDs(contentid.KindModule), "create strategy mints an id per reference")

	t.Run("forced strategy migrates the module once", func(t *testing.T) {
		repo := repository.NewMemory()
		cfg := testConfig()
		cfg.Strategy = StrategyMigrateForced
		m := newTestMigrator(t, fs, repo, cfg)

		report, err := m.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 0, report.Summary().Failed)

		assert.Equal(t, []contentid.ID{moduleID(1), moduleID(2), moduleID(3)}, repo.IDs(contentid.KindModule))
		rev, err := repo.GetVersion(context.Background(), moduleID(1), contentid.Latest())
		require.NoError(t, err)
		assert.Equal(t, uint32(1), rev.Version.Ordinal())

		for _, col := range []contentid.ID{collectionID(1), collectionID(2)} {
			manifest, ok := repo.Body(col, contentid.Latest())
			require.True(t, ok)
			assert.Contains(t, manifest, moduleID(1).Quoted())
		}
	})
}

func TestMigrateModule_Retry(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/corpus/modules/m1/index.cnxml", "one")

	t.Run("recovers from transient failures", func(t *testing.T) {
		repo := repository.NewMemory()
		failures := 2
		repo.SetFault(func(req repository.Request) error {
			if req.Op == repository.OpCreateEntity && failures > 0 {
				failures--
				return errUnavailable
			}
			return nil
		})

		m := newTestMigrator(t, fs, repo, testConfig())
		res := m.MigrateModule(context.Background(), "/corpus/modules/m1", StrategyCreateNew)
		require.True(t, res.Success, "error: %v", res.Err)
		assert.Equal(t, 4, res.Attempts)
		assert.Equal(t, 3, repo.Calls(repository.OpCreateEntity))
	})

	t.Run("gives up after max tries", func(t *testing.T) {
		repo := repository.NewMemory()
		repo.SetFault(func(req repository.Request) error {
			if req.Op == repository.OpCreateVersion {
				return errUnavailable
			}
			return nil
		})

		m := newTestMigrator(t, fs, repo, testConfig())
		res := m.MigrateModule(context.Background(), "/corpus/modules/m1", StrategyCreateNew)
		require.False(t, res.Success)

		var exhausted *ExhaustedError
		require.True(t, errors.As(res.Err, &exhausted))
		assert.Equal(t, 3, exhausted.Attempts)
		assert.True(t, errors.Is(res.Err, errUnavailable))
		assert.Equal(t, 3, repo.Calls(repository.OpCreateVersion))
	})
}

func TestMigrateModule_RetryLogging(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/corpus/modules/m1/index.cnxml", "one")

	tests := []struct {
		name     string
		verbose  bool
		wantInfo []string
		notInfo  []string
	}{
		{
			name:     "quiet logs retries only",
			wantInfo: []string{"try=2"},
			notInfo:  []string{"try=1"},
		},
		{
			name:     "verbose logs every attempt",
			verbose:  true,
			wantInfo: []string{"try=1", "try=2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := repository.NewMemory()
			failed := false
			repo.SetFault(func(req repository.Request) error {
				if req.Op == repository.OpCreateEntity && !failed {
					failed = true
					return errUnavailable
				}
				return nil
			})

			var buf bytes.Buffer
			log := hclog.New(&hclog.LoggerOptions{Output: &buf, Level: hclog.Debug})
			cfg := testConfig()
			cfg.Verbose = tt.verbose
			m := newTestMigrator(t, fs, repo, cfg, WithLogger(log))

			res := m.MigrateModule(context.Background(), "/corpus/modules/m1", StrategyCreateNew)
			require.True(t, res.Success, "error: %v", res.Err)

			var info []string
			for _, line := range strings.Split(buf.String(), "\n") {
				if strings.Contains(line, "[INFO]") && strings.Contains(line, "attempting upload") &&
					strings.Contains(line, `what="create module"`) {
					info = append(info, line)
				}
			}
			joined := strings.Join(info, "\n")
			for _, want := range tt.wantInfo {
				assert.Contains(t, joined, want)
			}
			for _, absent := range tt.notInfo {
				assert.NotContains(t, joined, absent)
			}
			assert.Contains(t, buf.String(), "upload failed, will retry")
		})
	}
}

func TestDispatch_UnknownKindPanics(t *testing.T) {
	m := newTestMigrator(t, afero.NewMemMapFs(), repository.NewMemory(), testConfig())

	assert.PanicsWithValue(t, "worker-1: no handler for work item kind ItemKind(99)", func() {
		m.dispatch("worker-1", &WorkItem{Kind: ItemKind(99), Path: "/corpus/unknown"})
	})
}

func TestMigrateModule_InvalidDirectory(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/corpus/modules/m0/index.cnxml", "zero")

	repo := repository.NewMemory()
	m := newTestMigrator(t, fs, repo, testConfig())

	res := m.MigrateModule(context.Background(), "/corpus/modules/m0", StrategyCreateNew)
	require.False(t, res.Success)

	var verr *ValidationError
	require.True(t, errors.As(res.Err, &verr))
	assert.True(t, errors.Is(res.Err, contentid.ErrInvalidID))
	assert.Equal(t, 0, repo.Calls(repository.OpCreateEntity))
}

func writeCollection(t *testing.T, fs afero.Fs, dir string, modules []string) {
	t.Helper()
	var refs []string
	for _, mod := range modules {
		writeFile(t, fs, dir+"/"+mod+"/index.cnxml", "<document>"+mod+"</document>")
		refs = append(refs, fmt.Sprintf(`<module document="%s"/>`, mod))
	}
	writeFile(t, fs, dir+"/collection.xml", "<collection>"+strings.Join(refs, "")+"</collection>")
}

func TestMigrateCollection(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeCollection(t, fs, "/corpus/collections/col1", []string{"m1", "m2", "m3", "m10"})

	repo := repository.NewMemory()
	m := newTestMigrator(t, fs, repo, testConfig())

	res := m.MigrateCollection(context.Background(), "/corpus/collections/col1", StrategyCreateNew)
	require.True(t, res.Success, "error: %v", res.Err)
	assert.Equal(t, collectionID(1), res.OldID)
	assert.Equal(t, collectionID(contentid.ForcedThreshold), res.NewID)

	manifest, ok := repo.Body(res.NewID, contentid.Latest())
	require.True(t, ok)

	mapping := m.Report().Mapping(ModuleItem)
	require.Len(t, mapping, 4)
	for _, old := range []uint64{1, 2, 3, 10} {
		newID, ok := mapping[moduleID(old)]
		require.True(t, ok, "m%d not mapped", old)
		assert.Contains(t, manifest, newID.Quoted())
		assert.NotContains(t, manifest, moduleID(old).Quoted())
	}
}

func TestMigrateCollection_ModuleFailureAborts(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeCollection(t, fs, "/corpus/collections/col1", []string{"m1", "m2", "m3"})

	repo := repository.NewMemory()
	repo.SetFault(func(req repository.Request) error {
		if req.Op == repository.OpCreateVersion && req.Body == "<document>m2</document>" {
			return errUnavailable
		}
		return nil
	})
	m := newTestMigrator(t, fs, repo, testConfig())

	res := m.MigrateCollection(context.Background(), "/corpus/collections/col1", StrategyCreateNew)
	require.False(t, res.Success)

	var cerr *CollectionError
	require.True(t, errors.As(res.Err, &cerr))
	require.Len(t, cerr.Failed, 1)
	assert.Equal(t, "/corpus/collections/col1/m2", cerr.Failed[0].Path)
	assert.True(t, errors.Is(res.Err, errUnavailable))

	assert.Empty(t, repo.IDs(contentid.KindCollection))
	assert.Len(t, m.Report().Mapping(ModuleItem), 2)
}

func TestMigrateCollection_ExistingCollection(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeCollection(t, fs, "/corpus/collections/col7", []string{"m1"})

	repo := repository.NewMemory()
	forced := collectionID(7)
	entity, err := repo.CreateEntity(context.Background(), contentid.KindCollection, &forced)
	require.NoError(t, err)
	_, err = repo.CreateVersion(context.Background(), entity.EditLocation, "<collection/>")
	require.NoError(t, err)

	m := newTestMigrator(t, fs, repo, testConfig())
	res := m.MigrateCollection(context.Background(), "/corpus/collections/col7", StrategyMigrateForced)
	require.True(t, res.Success, "error: %v", res.Err)
	assert.Equal(t, forced, res.NewID)

	rev, err := repo.GetVersion(context.Background(), forced, contentid.Latest())
	require.NoError(t, err)
	assert.Equal(t, uint32(2), rev.Version.Ordinal())

	manifest, ok := repo.Body(forced, contentid.Latest())
	require.True(t, ok)
	assert.Contains(t, manifest, moduleID(1).Quoted())
	assert.Len(t, repo.IDs(contentid.KindCollection), 1)
}

func TestMigrateCollection_BoundsModuleConcurrency(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeCollection(t, fs, "/corpus/collections/col1", []string{"m1", "m2", "m3", "m4", "m5", "m6"})

	client := &concurrencyClient{Memory: repository.NewMemory()}
	cfg := testConfig()
	cfg.ModuleConcurrency = 2
	m := newTestMigrator(t, fs, client, cfg)

	res := m.MigrateCollection(context.Background(), "/corpus/collections/col1", StrategyCreateNew)
	require.True(t, res.Success, "error: %v", res.Err)
	assert.LessOrEqual(t, atomic.LoadInt32(&client.highest), int32(2))
}

func TestRun(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/corpus/resources/r1/resource_properties.txt", "filename=a.txt\n")
	writeFile(t, fs, "/corpus/resources/r1/resource_data", "alpha")
	writeFile(t, fs, "/corpus/modules/m1/index.cnxml", "one")
	writeFile(t, fs, "/corpus/modules/m2/index.cnxml", "two")
	writeCollection(t, fs, "/corpus/collections/col1", []string{"m3", "m4"})

	repo := repository.NewMemory()
	sink := &recordingSink{}
	m := newTestMigrator(t, fs, repo, testConfig(), WithSink(sink))

	report, err := m.Run(context.Background())
	require.NoError(t, err)

	summary := report.Summary()
	assert.Equal(t, 6, summary.Succeeded)
	assert.Equal(t, 0, summary.Failed)
	assert.Len(t, repo.IDs(contentid.KindModule), 4)
	assert.Len(t, repo.IDs(contentid.KindCollection), 1)
	assert.Len(t, repo.IDs(contentid.KindResource), 1)

	assert.Len(t, sink.results, 6)
	assert.Equal(t, []string{m.RunID()}, sink.started)
	require.Len(t, sink.finished, 1)
	assert.Equal(t, 6, sink.finished[0].Succeeded)

	stats := m.QueueStats()
	assert.Equal(t, 0, stats.Pending)
	assert.Equal(t, 0, stats.InProgress)
	assert.Equal(t, 4, stats.Completed)

	var buf strings.Builder
	require.NoError(t, report.WriteYAML(&buf))
	assert.Contains(t, buf.String(), "run_id: "+m.RunID())
	assert.Contains(t, buf.String(), "kind: collection")
}

func TestRun_ReportsFailures(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/corpus/modules/m1/index.cnxml", "one")
	writeFile(t, fs, "/corpus/modules/m2/index.cnxml", "two")

	repo := repository.NewMemory()
	repo.SetFault(func(req repository.Request) error {
		if req.Op == repository.OpCreateVersion && req.Body == "two" {
			return errUnavailable
		}
		return nil
	})
	m := newTestMigrator(t, fs, repo, testConfig())

	report, err := m.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "/corpus/modules/m2")

	failures := report.Failures()
	require.Len(t, failures, 1)
	var exhausted *ExhaustedError
	assert.True(t, errors.As(failures[0].Err, &exhausted))
}

func TestRun_BadShardLayout(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/corpus/modules/000", 0o755))

	m, err := NewMigrator(
		WithTree(sourcetree.New(fs, "/corpus", true)),
		WithRepository(repository.NewMemory()),
		WithConfig(testConfig()),
	)
	require.NoError(t, err)

	_, err = m.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, sourcetree.ErrBadShardLayout))
}
