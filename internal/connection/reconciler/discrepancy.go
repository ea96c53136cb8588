package reconciler

import (
	"context"
	"fmt"
	"log/slog"

	"connection/internal/connection/classify"
	"connection/internal/connection/metrics"
	"connection/internal/connection/models"
	"connection/internal/connection/view"
)

// DiscrepancyProjector keeps the discrepancy view in step with a record. It
// is independent of the classified views: a record can be connected and a
// discrepancy at the same time.
type DiscrepancyProjector struct {
	store   view.Store
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewDiscrepancyProjector(store view.Store, logger *slog.Logger, m *metrics.Metrics) (*DiscrepancyProjector, error) {
	if store == nil {
		return nil, fmt.Errorf("discrepancy store is required")
	}
	if store.View() != models.ViewDiscrepancy {
		return nil, fmt.Errorf("discrepancy projector given %s store", store.View())
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &DiscrepancyProjector{store: store, logger: logger, metrics: m}, nil
}

// Project upserts rec when its designated bodies disagree and removes it
// otherwise.
func (d *DiscrepancyProjector) Project(ctx context.Context, rec *models.Record) view.Outcome {
	var o view.Outcome
	if classify.IsDiscrepancy(rec) {
		o = view.Upsert(ctx, d.store, models.ProjectFor(models.ViewDiscrepancy, rec))
	} else {
		o = view.Delete(ctx, d.store, rec.Key())
	}
	if !o.OK() {
		d.metrics.IncrementViewWriteFailure(o.View.String(), string(o.Op))
		attrs := append([]any{"view", o.View, "op", o.Op, "error", o.Err}, o.Key.LogAttrs()...)
		d.logger.WarnContext(ctx, "discrepancy write failed", attrs...)
	}
	return o
}
