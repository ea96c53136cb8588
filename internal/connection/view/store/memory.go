package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"connection/internal/connection/models"
	"connection/pkg/platform/sentinel"
)

// Memory is a map-backed view store. It favors clarity over performance and
// backs dev mode and unit tests.
type Memory struct {
	view models.View
	mu   sync.RWMutex
	rows map[uuid.UUID]models.Projection
	keys map[models.NaturalKey]uuid.UUID
	now  func() time.Time
}

// NewMemory creates an empty in-memory store for view.
func NewMemory(view models.View) *Memory {
	return &Memory{
		view: view,
		rows: make(map[uuid.UUID]models.Projection),
		keys: make(map[models.NaturalKey]uuid.UUID),
		now:  time.Now,
	}
}

func (m *Memory) View() models.View { return m.view }

// FindByKey returns the projection stored under key, or sentinel.ErrNotFound.
func (m *Memory) FindByKey(_ context.Context, key models.NaturalKey) (*models.Projection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if id, ok := m.lookup(key); ok {
		p := m.rows[id]
		return &p, nil
	}
	return nil, sentinel.ErrNotFound
}

// Upsert overwrites the row sharing p's natural key, keeping its id, or
// inserts a new row with a fresh id.
func (m *Memory) Upsert(_ context.Context, p models.Projection) error {
	if err := p.Key().Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.lookup(p.Key())
	if !ok {
		id = uuid.New()
	}
	p.ID = id
	p.View = m.view
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = m.now()
	}
	m.rows[id] = p
	m.keys[p.Key()] = id
	return nil
}

// DeleteByKey removes the row with key. Deleting an absent key is a no-op.
func (m *Memory) DeleteByKey(_ context.Context, key models.NaturalKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.lookup(key); ok {
		delete(m.rows, id)
		delete(m.keys, models.NewNaturalKey(key.RegistryID, key.PersonID))
	}
	return nil
}

// Search filters, sorts and pages the view.
func (m *Memory) Search(_ context.Context, criteria models.Criteria) (models.Page, error) {
	c := criteria.Normalize()

	m.mu.RLock()
	matched := make([]models.Projection, 0, len(m.rows))
	for _, p := range m.rows {
		if matches(&p, c) {
			matched = append(matched, p)
		}
	}
	m.mu.RUnlock()

	sortProjections(matched, c.SortField, c.SortOrder)

	total := int64(len(matched))
	start := c.Page * c.PageSize
	if start > len(matched) {
		start = len(matched)
	}
	end := start + c.PageSize
	if end > len(matched) {
		end = len(matched)
	}
	return models.Page{
		Records:      append([]models.Projection{}, matched[start:end]...),
		TotalResults: total,
		TotalPages:   models.TotalPagesFor(total, c.PageSize),
	}, nil
}

// Recreate empties the store.
func (m *Memory) Recreate(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = make(map[uuid.UUID]models.Projection)
	m.keys = make(map[models.NaturalKey]uuid.UUID)
	return nil
}

// Len returns the number of stored rows.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rows)
}

func (m *Memory) lookup(key models.NaturalKey) (uuid.UUID, bool) {
	id, ok := m.keys[models.NewNaturalKey(key.RegistryID, key.PersonID)]
	return id, ok
}
