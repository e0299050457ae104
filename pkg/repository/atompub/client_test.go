package atompub

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashicorp-forge/repomigrate/pkg/contentid"
	"github.com/hashicorp-forge/repomigrate/pkg/repository"
)

// fakeServer is a minimal repository speaking the entry dialect.
type fakeServer struct {
	mu       sync.Mutex
	next     uint64
	bodies   map[string][]string // id -> versions
	edits    map[string]string   // edit path -> id
	token    string
	failWith int
}

func newFakeServer() *fakeServer {
	return &fakeServer{
		next:   contentid.ForcedThreshold,
		bodies: make(map[string][]string),
		edits:  make(map[string]string),
	}
}

func (f *fakeServer) writeEntry(w http.ResponseWriter, status int, id string, version int, edit string) {
	entry := Entry{ID: id, Links: []Link{{Rel: "edit", Href: edit}}}
	if version > 0 {
		entry.Version = fmt.Sprint(version)
	}
	data, _ := xml.Marshal(&entry)
	w.Header().Set("Content-Type", "application/atom+xml")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func (f *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.token != "" && r.Header.Get("Authorization") != "Bearer "+f.token {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if f.failWith != 0 {
		w.WriteHeader(f.failWith)
		return
	}

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	switch {
	case r.Method == http.MethodPost && len(parts) == 1:
		kind, _ := contentid.ParseKind(strings.TrimSuffix(parts[0], "s"))
		id := r.Header.Get(ForcedIDHeader)
		if id == "" {
			id = contentid.NewID(kind, f.next).String()
			f.next++
		} else if forced, err := contentid.ParseID(kind, id); err != nil || !forced.IsForced() {
			w.WriteHeader(http.StatusUnprocessableEntity)
			return
		} else if _, taken := f.bodies[id]; taken {
			w.WriteHeader(http.StatusConflict)
			return
		}
		f.bodies[id] = nil
		edit := "/edit/" + id
		f.edits[edit] = id
		f.writeEntry(w, http.StatusCreated, id, 0, edit)

	case r.Method == http.MethodPut && len(parts) == 2 && parts[0] == "edit":
		id, ok := f.edits[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		body, _ := io.ReadAll(r.Body)
		f.bodies[id] = append(f.bodies[id], string(body))
		f.writeEntry(w, http.StatusOK, id, len(f.bodies[id]), r.URL.Path)

	case r.Method == http.MethodGet && len(parts) == 3:
		versions, ok := f.bodies[parts[1]]
		if !ok || len(versions) == 0 {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		f.writeEntry(w, http.StatusOK, parts[1], len(versions), "/edit/"+parts[1])

	default:
		w.WriteHeader(http.StatusBadRequest)
	}
}

func newTestClient(t *testing.T, srv *httptest.Server, token string) *Client {
	t.Helper()
	c, err := NewClient(&Config{BaseURL: srv.URL, AuthToken: token}, nil)
	require.NoError(t, err)
	return c
}

func TestClient_CreateAndVersion(t *testing.T) {
	fake := newFakeServer()
	fake.token = "secret"
	srv := httptest.NewServer(fake)
	defer srv.Close()

	c := newTestClient(t, srv, "secret")
	ctx := context.Background()

	e, err := c.CreateEntity(ctx, contentid.KindModule, nil)
	require.NoError(t, err)
	assert.Equal(t, contentid.NewID(contentid.KindModule, contentid.ForcedThreshold), e.ID)
	assert.Equal(t, "/edit/m300000", e.EditLocation)

	rev, err := c.CreateVersion(ctx, e.EditLocation, "<document/>")
	require.NoError(t, err)
	assert.Equal(t, e.ID, rev.ID)
	assert.Equal(t, contentid.NewVersion(1), rev.Version)

	got, err := c.GetVersion(ctx, e.ID, contentid.Latest())
	require.NoError(t, err)
	assert.Equal(t, contentid.NewVersion(1), got.Version)
	assert.Equal(t, e.EditLocation, got.EditLocation)

	assert.Equal(t, []string{"<document/>"}, fake.bodies["m300000"])
}

func TestClient_ForcedID(t *testing.T) {
	srv := httptest.NewServer(newFakeServer())
	defer srv.Close()

	c := newTestClient(t, srv, "")
	ctx := context.Background()
	forced := contentid.NewID(contentid.KindCollection, 10064)

	e, err := c.CreateEntity(ctx, contentid.KindCollection, &forced)
	require.NoError(t, err)
	assert.Equal(t, forced, e.ID)

	_, err = c.CreateEntity(ctx, contentid.KindCollection, &forced)
	assert.True(t, errors.Is(err, repository.ErrConflict))

	outside := contentid.NewID(contentid.KindCollection, contentid.ForcedThreshold+1)
	_, err = c.CreateEntity(ctx, contentid.KindCollection, &outside)
	assert.True(t, errors.Is(err, repository.ErrInvalidForcedID))
}

func TestClient_GetVersionNotFound(t *testing.T) {
	srv := httptest.NewServer(newFakeServer())
	defer srv.Close()

	c := newTestClient(t, srv, "")
	ctx := context.Background()

	_, err := c.GetVersion(ctx, contentid.NewID(contentid.KindCollection, 12), contentid.Latest())
	assert.True(t, errors.Is(err, repository.ErrNotMigrated), "forced-range miss is a reserved-range signal")

	_, err = c.GetVersion(ctx, contentid.NewID(contentid.KindCollection, 400000), contentid.Latest())
	assert.True(t, errors.Is(err, repository.ErrNotFound))
}

func TestClient_ServerError(t *testing.T) {
	fake := newFakeServer()
	fake.failWith = http.StatusServiceUnavailable
	srv := httptest.NewServer(fake)
	defer srv.Close()

	c := newTestClient(t, srv, "")
	_, err := c.CreateEntity(context.Background(), contentid.KindResource, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.False(t, repository.IsAbsent(err))
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "valid", cfg: Config{BaseURL: "https://repo.example.org"}},
		{name: "missing url", cfg: Config{}, wantErr: true},
		{name: "bad scheme", cfg: Config{BaseURL: "ftp://repo.example.org"}, wantErr: true},
		{name: "bad timeout", cfg: Config{BaseURL: "https://repo.example.org", Timeout: "soon"}, wantErr: true},
		{name: "negative timeout", cfg: Config{BaseURL: "https://repo.example.org", Timeout: "-1s"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
