package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/hashicorp-forge/repomigrate/pkg/contentid"
	"github.com/hashicorp-forge/repomigrate/pkg/keycodec"
)

// Compile-time check that Memory implements Client.
var _ Client = (*Memory)(nil)

// EditKeyPrefix prefixes the key tokens minted for edit locations.
const EditKeyPrefix = "e"

// Op names a repository operation, used for fault injection and call counts.
type Op string

const (
	OpCreateEntity  Op = "create_entity"
	OpCreateVersion Op = "create_version"
	OpGetVersion    Op = "get_version"
)

// Request describes one call made against a Memory repository.
type Request struct {
	Op           Op
	Kind         contentid.Kind
	Forced       *contentid.ID
	EditLocation string
	Body         string
	ID           contentid.ID
	Version      contentid.Version
}

// FaultFunc decides whether a request should fail. Returning nil lets the
// request through.
type FaultFunc func(req Request) error

type memoryEntity struct {
	id       contentid.ID
	edit     string
	versions []string
}

// Memory is an in-process repository. It mints unrestricted identifiers from
// contentid.ForcedThreshold upward, honors forced identifiers, and keys edit
// locations with keycodec tokens. It backs dry runs and tests.
type Memory struct {
	mu       sync.Mutex
	entities map[contentid.ID]*memoryEntity
	byEdit   map[string]*memoryEntity
	next     map[contentid.Kind]uint64
	editSeq  uint64
	calls    map[Op]int
	fault    FaultFunc
}

// NewMemory creates an empty in-memory repository.
func NewMemory() *Memory {
	return &Memory{
		entities: make(map[contentid.ID]*memoryEntity),
		byEdit:   make(map[string]*memoryEntity),
		next:     make(map[contentid.Kind]uint64),
		calls:    make(map[Op]int),
	}
}

// SetFault installs a fault injector. Pass nil to remove it.
func (m *Memory) SetFault(f FaultFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fault = f
}

func (m *Memory) check(req Request) error {
	m.calls[req.Op]++
	if m.fault == nil {
		return nil
	}
	return m.fault(req)
}

// CreateEntity implements Client.
func (m *Memory) CreateEntity(_ context.Context, kind contentid.Kind, forced *contentid.ID) (Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check(Request{Op: OpCreateEntity, Kind: kind, Forced: forced}); err != nil {
		return Entity{}, err
	}

	var id contentid.ID
	if forced != nil {
		if forced.Kind() != kind {
			return Entity{}, fmt.Errorf("%w: %s is not a %s", ErrInvalidForcedID, forced, kind)
		}
		if !forced.IsForced() {
			return Entity{}, fmt.Errorf("%w: %s is outside the reserved range", ErrInvalidForcedID, forced)
		}
		if _, ok := m.entities[*forced]; ok {
			return Entity{}, fmt.Errorf("%w: %s", ErrConflict, forced)
		}
		id = *forced
	} else {
		n, ok := m.next[kind]
		if !ok {
			n = contentid.ForcedThreshold
		}
		m.next[kind] = n + 1
		id = contentid.NewID(kind, n)
	}

	m.editSeq++
	e := &memoryEntity{
		id:   id,
		edit: "/edit/" + keycodec.Encode(EditKeyPrefix, m.editSeq),
	}
	m.entities[id] = e
	m.byEdit[e.edit] = e

	return Entity{ID: id, EditLocation: e.edit}, nil
}

// CreateVersion implements Client.
func (m *Memory) CreateVersion(_ context.Context, editLocation, body string) (Revision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check(Request{Op: OpCreateVersion, EditLocation: editLocation, Body: body}); err != nil {
		return Revision{}, err
	}

	e, ok := m.byEdit[editLocation]
	if !ok {
		return Revision{}, fmt.Errorf("%w: edit location %s", ErrNotFound, editLocation)
	}

	v, err := contentid.NewVersion(uint32(len(e.versions))).Next()
	if err != nil {
		return Revision{}, err
	}
	e.versions = append(e.versions, body)

	return Revision{ID: e.id, Version: v, EditLocation: e.edit}, nil
}

// GetVersion implements Client.
func (m *Memory) GetVersion(_ context.Context, id contentid.ID, version contentid.Version) (Revision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check(Request{Op: OpGetVersion, ID: id, Version: version}); err != nil {
		return Revision{}, err
	}

	e, ok := m.entities[id]
	if !ok || len(e.versions) == 0 {
		return Revision{}, fmt.Errorf("%w: %s", NotFoundFor(id), id)
	}

	v := version
	if version.IsLatest() {
		v = contentid.NewVersion(uint32(len(e.versions)))
	}
	if !v.IsPublishable() || int(v.Ordinal()) > len(e.versions) {
		return Revision{}, fmt.Errorf("%w: %s version %s", ErrNotFound, id, version)
	}

	return Revision{ID: e.id, Version: v, EditLocation: e.edit}, nil
}

// Body returns the stored body of a version, or false when absent.
func (m *Memory) Body(id contentid.ID, version contentid.Version) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entities[id]
	if !ok || len(e.versions) == 0 {
		return "", false
	}
	n := int(version.Ordinal())
	if version.IsLatest() {
		n = len(e.versions)
	}
	if n < 1 || n > len(e.versions) {
		return "", false
	}
	return e.versions[n-1], true
}

// IDs returns every entity identifier of kind, in numeric order.
func (m *Memory) IDs(kind contentid.Kind) []contentid.ID {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ids []contentid.ID
	for id := range m.entities {
		if id.Kind() == kind {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Number() < ids[j].Number() })
	return ids
}

// Calls returns how many times op was invoked, including failed calls.
func (m *Memory) Calls(op Op) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}
