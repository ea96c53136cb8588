package reconciler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"connection/internal/connection/classify"
	"connection/internal/connection/metrics"
	"connection/internal/connection/models"
	"connection/internal/connection/view"
)

// Result reports where a record landed and every store write attempted.
type Result struct {
	View     models.View
	Reason   *string
	Outcomes []view.Outcome
}

// Failed returns the outcomes whose writes did not succeed.
func (r Result) Failed() []view.Outcome {
	var failed []view.Outcome
	for _, o := range r.Outcomes {
		if !o.OK() {
			failed = append(failed, o)
		}
	}
	return failed
}

// Reconciler places a canonical record in exactly one classified view and
// evicts it from the others.
type Reconciler struct {
	views   *view.Set
	logger  *slog.Logger
	metrics *metrics.Metrics
	clock   func() time.Time
	tracer  trace.Tracer
}

type Option func(*Reconciler)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Reconciler) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Reconciler) {
		r.metrics = m
	}
}

// WithClock sets the source of "today" for classification.
func WithClock(clock func() time.Time) Option {
	return func(r *Reconciler) {
		if clock != nil {
			r.clock = clock
		}
	}
}

func New(views *view.Set, opts ...Option) (*Reconciler, error) {
	if views == nil {
		return nil, fmt.Errorf("view set is required")
	}
	r := &Reconciler{
		views:  views,
		logger: slog.New(slog.DiscardHandler),
		clock:  time.Now,
		tracer: otel.Tracer("connection/reconciler"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Reconcile classifies rec, records the exception reason on it, upserts it
// into the owning view and deletes it from the other classified views.
// Store failures are reported in the result and logged; they never stop the
// remaining writes and are not returned as errors.
func (r *Reconciler) Reconcile(ctx context.Context, rec *models.Record) Result {
	ctx, span := r.tracer.Start(ctx, "reconciler.Reconcile")
	defer span.End()

	classified := classify.Classify(rec, r.clock())
	rec.ExceptionReason = classified.Reason

	result := Result{
		View:     classified.View,
		Reason:   classified.Reason,
		Outcomes: make([]view.Outcome, 0, len(models.ClassifiedViews)),
	}

	target := r.views.MustGet(classified.View)
	result.Outcomes = append(result.Outcomes, view.Upsert(ctx, target, models.ProjectFor(classified.View, rec)))

	key := rec.Key()
	for _, v := range models.ClassifiedViews {
		if v == classified.View {
			continue
		}
		result.Outcomes = append(result.Outcomes, view.Delete(ctx, r.views.MustGet(v), key))
	}

	failed := r.report(ctx, result.Outcomes)
	r.metrics.IncrementClassified(classified.View.String())

	span.SetAttributes(
		attribute.String("view", classified.View.String()),
		attribute.Int("failed_writes", failed),
	)
	return result
}

// report logs failed outcomes with the natural key for correlation.
func (r *Reconciler) report(ctx context.Context, outcomes []view.Outcome) int {
	failed := 0
	for _, o := range outcomes {
		if o.OK() {
			continue
		}
		failed++
		r.metrics.IncrementViewWriteFailure(o.View.String(), string(o.Op))
		attrs := append([]any{"view", o.View, "op", o.Op, "error", o.Err}, o.Key.LogAttrs()...)
		r.logger.WarnContext(ctx, "view write failed", attrs...)
	}
	return failed
}
