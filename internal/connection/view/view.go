package view

import (
	"context"
	"fmt"

	"connection/internal/connection/models"
)

// Store is the per-view capability set. One instance serves one view.
type Store interface {
	View() models.View
	FindByKey(ctx context.Context, key models.NaturalKey) (*models.Projection, error)
	Upsert(ctx context.Context, p models.Projection) error
	DeleteByKey(ctx context.Context, key models.NaturalKey) error
	Search(ctx context.Context, criteria models.Criteria) (models.Page, error)
	// Recreate drops and recreates the view's storage, leaving it empty.
	Recreate(ctx context.Context) error
}

// Op names a store operation for outcomes and metrics.
type Op string

const (
	OpUpsert Op = "upsert"
	OpDelete Op = "delete"
)

// Outcome is the result of one best-effort store write. A failed outcome is
// logged by the caller; it never aborts sibling writes.
type Outcome struct {
	View models.View
	Op   Op
	Key  models.NaturalKey
	Err  error
}

// OK reports whether the write succeeded.
func (o Outcome) OK() bool { return o.Err == nil }

// Upsert writes p to s and reports the outcome.
func Upsert(ctx context.Context, s Store, p models.Projection) Outcome {
	return Outcome{View: s.View(), Op: OpUpsert, Key: p.Key(), Err: s.Upsert(ctx, p)}
}

// Delete removes key from s and reports the outcome.
func Delete(ctx context.Context, s Store, key models.NaturalKey) Outcome {
	return Outcome{View: s.View(), Op: OpDelete, Key: key, Err: s.DeleteByKey(ctx, key)}
}

// Set resolves view stores by name.
type Set struct {
	stores map[models.View]Store
}

// NewSet indexes stores by their view. Every classified view must be present.
func NewSet(stores ...Store) (*Set, error) {
	set := &Set{stores: make(map[models.View]Store, len(stores))}
	for _, s := range stores {
		if s == nil {
			return nil, fmt.Errorf("view store is required")
		}
		if _, dup := set.stores[s.View()]; dup {
			return nil, fmt.Errorf("duplicate store for view %s", s.View())
		}
		set.stores[s.View()] = s
	}
	for _, v := range models.ClassifiedViews {
		if _, ok := set.stores[v]; !ok {
			return nil, fmt.Errorf("missing store for view %s", v)
		}
	}
	return set, nil
}

// Get returns the store for v.
func (s *Set) Get(v models.View) (Store, bool) {
	st, ok := s.stores[v]
	return st, ok
}

// MustGet returns the store for a view NewSet guaranteed to exist.
func (s *Set) MustGet(v models.View) Store {
	st, ok := s.stores[v]
	if !ok {
		panic(fmt.Sprintf("view store %s not configured", v))
	}
	return st
}
