package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"connection/internal/connection/master"
	"connection/internal/connection/models"
	"connection/pkg/platform/sentinel"
)

// Memory is an in-memory master store for dev mode and tests.
type Memory struct {
	mu      sync.RWMutex
	records map[uuid.UUID]*models.Record
	keys    map[models.NaturalKey]uuid.UUID
}

func NewMemory() *Memory {
	return &Memory{
		records: make(map[uuid.UUID]*models.Record),
		keys:    make(map[models.NaturalKey]uuid.UUID),
	}
}

func (m *Memory) FindByKey(_ context.Context, key models.NaturalKey) (*models.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.keys[normalize(key)]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return m.records[id].Clone(), nil
}

func (m *Memory) FindByRegistryID(_ context.Context, registryID string) ([]*models.Record, error) {
	key := models.NewNaturalKey(registryID, "")
	if key.RegistryID == "" {
		return nil, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.Record
	for _, rec := range m.records {
		if rec.RegistryID == key.RegistryID {
			out = append(out, rec.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PersonID < out[j].PersonID })
	return out, nil
}

func (m *Memory) Save(_ context.Context, rec *models.Record) error {
	if rec == nil {
		return fmt.Errorf("master record is required")
	}
	key := rec.Key()
	if err := key.Validate(); err != nil {
		return err
	}
	rec.RegistryID, rec.PersonID = key.RegistryID, key.PersonID
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.keys[key]; ok {
		rec.ID = id
	} else if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	m.records[rec.ID] = rec.Clone()
	m.keys[key] = rec.ID
	return nil
}

func (m *Memory) Count(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.records)), nil
}

// OpenCursor snapshots the current ids; records saved afterwards are not
// visited, mirroring a server-side cursor over a fixed snapshot.
func (m *Memory) OpenCursor(_ context.Context, batchSize int) (master.Cursor, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive: %w", sentinel.ErrInvalidState)
	}
	m.mu.RLock()
	ids := make([]uuid.UUID, 0, len(m.records))
	for id := range m.records {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return &memoryCursor{store: m, ids: ids, batch: batchSize}, nil
}

type memoryCursor struct {
	store  *Memory
	ids    []uuid.UUID
	batch  int
	closed bool
}

func (c *memoryCursor) Next(_ context.Context) ([]*models.Record, error) {
	if c.closed {
		return nil, fmt.Errorf("cursor closed: %w", sentinel.ErrInvalidState)
	}
	n := min(c.batch, len(c.ids))
	page := c.ids[:n]
	c.ids = c.ids[n:]

	c.store.mu.RLock()
	defer c.store.mu.RUnlock()
	out := make([]*models.Record, 0, len(page))
	for _, id := range page {
		if rec, ok := c.store.records[id]; ok {
			out = append(out, rec.Clone())
		}
	}
	return out, nil
}

func (c *memoryCursor) Close(_ context.Context) error {
	c.closed = true
	c.ids = nil
	return nil
}

func normalize(key models.NaturalKey) models.NaturalKey {
	return models.NewNaturalKey(key.RegistryID, key.PersonID)
}
