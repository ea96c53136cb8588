package master

import (
	"context"

	"connection/internal/connection/models"
)

// Store persists canonical records keyed by natural key. It is the single
// source of truth; views are rebuilt from it.
type Store interface {
	// FindByKey returns sentinel.ErrNotFound when no record has key.
	FindByKey(ctx context.Context, key models.NaturalKey) (*models.Record, error)
	// FindByRegistryID returns every record carrying registryID. More than one
	// record may share a registry id when person ids differ or are absent.
	FindByRegistryID(ctx context.Context, registryID string) ([]*models.Record, error)
	// Save upserts by natural key, preserving an existing id, and sets rec.ID.
	Save(ctx context.Context, rec *models.Record) error
	Count(ctx context.Context) (int64, error)
	// OpenCursor starts a resumable scan over all records.
	OpenCursor(ctx context.Context, batchSize int) (Cursor, error)
}

// Cursor streams master records one batch at a time.
type Cursor interface {
	// Next returns the next batch; an empty batch means the scan is exhausted.
	Next(ctx context.Context) ([]*models.Record, error)
	// Close releases server-side resources. Safe to call more than once.
	Close(ctx context.Context) error
}
