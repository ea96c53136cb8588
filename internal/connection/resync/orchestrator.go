package resync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"connection/internal/connection/master"
	"connection/internal/connection/metrics"
	"connection/internal/connection/models"
	"connection/internal/connection/view"
	"connection/pkg/platform/sentinel"
)

const (
	DefaultTriggerValue = "resync"
	DefaultBatchSize    = 1000
)

var (
	// ErrCursorFailed wraps any error from opening or advancing the master
	// scan, including server-side expiry.
	ErrCursorFailed = errors.New("master cursor failed")
	// ErrResyncInProgress is returned when another instance holds the guard.
	ErrResyncInProgress = fmt.Errorf("resync already in progress: %w", sentinel.ErrConflict)
)

// Config selects the views rebuilt by a run and how the master is scanned.
type Config struct {
	Views        []models.View
	BatchSize    int
	TriggerValue string
}

// DefaultConfig rebuilds every view.
func DefaultConfig() Config {
	views := make([]models.View, len(models.AllViews))
	copy(views, models.AllViews)
	return Config{
		Views:        views,
		BatchSize:    DefaultBatchSize,
		TriggerValue: DefaultTriggerValue,
	}
}

// Source opens a scan over every master record.
type Source interface {
	OpenCursor(ctx context.Context, batchSize int) (master.Cursor, error)
}

// Guard serialises runs across instances. Acquire reports false when
// another holder exists.
type Guard interface {
	Acquire(ctx context.Context) (release func(context.Context) error, ok bool, err error)
}

// Summary describes a finished run.
type Summary struct {
	Records  int           `json:"records"`
	Batches  int           `json:"batches"`
	Failures int           `json:"failures"`
	Views    []models.View `json:"views"`
	Duration time.Duration `json:"duration"`
}

// Orchestrator wipes the configured views and rebuilds them from the master.
type Orchestrator struct {
	cfg         Config
	source      Source
	stores      map[models.View]view.Store
	reconciler  master.ViewReconciler
	discrepancy master.DiscrepancyProjector
	guard       Guard
	logger      *slog.Logger
	metrics     *metrics.Metrics
	tracer      trace.Tracer
}

type Option func(*Orchestrator)

func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

func WithGuard(g Guard) Option {
	return func(o *Orchestrator) {
		o.guard = g
	}
}

func WithDiscrepancyProjector(p master.DiscrepancyProjector) Option {
	return func(o *Orchestrator) {
		o.discrepancy = p
	}
}

// New validates cfg against the supplied stores. Every configured view must
// have a store.
func New(cfg Config, source Source, stores []view.Store, r master.ViewReconciler, opts ...Option) (*Orchestrator, error) {
	if source == nil {
		return nil, fmt.Errorf("master source is required")
	}
	if r == nil {
		return nil, fmt.Errorf("view reconciler is required")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.TriggerValue == "" {
		cfg.TriggerValue = DefaultTriggerValue
	}

	byView := make(map[models.View]view.Store, len(stores))
	for _, s := range stores {
		if s != nil {
			byView[s.View()] = s
		}
	}
	for _, v := range cfg.Views {
		if _, ok := byView[v]; !ok {
			return nil, fmt.Errorf("no store for resync view %s", v)
		}
	}

	o := &Orchestrator{
		cfg:        cfg,
		source:     source,
		stores:     byView,
		reconciler: r,
		logger:     slog.New(slog.DiscardHandler),
		tracer:     otel.Tracer("connection/resync"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// HandleTrigger runs a resync when signal equals the configured trigger
// value. Any other signal is ignored and reports false.
func (o *Orchestrator) HandleTrigger(ctx context.Context, signal string) (Summary, bool, error) {
	if signal != o.cfg.TriggerValue {
		o.logger.DebugContext(ctx, "ignoring resync signal", "signal", signal)
		return Summary{}, false, nil
	}
	summary, err := o.Run(ctx)
	return summary, true, err
}

// Run recreates every configured view and streams the master through the
// reconciler one batch at a time. Records already reconciled when a cursor
// error aborts the run stay in their views.
func (o *Orchestrator) Run(ctx context.Context) (summary Summary, err error) {
	ctx, span := o.tracer.Start(ctx, "resync.Run")
	defer span.End()

	if o.guard != nil {
		release, ok, gerr := o.guard.Acquire(ctx)
		if gerr != nil {
			return Summary{}, fmt.Errorf("acquire resync guard: %w", gerr)
		}
		if !ok {
			return Summary{}, ErrResyncInProgress
		}
		defer func() {
			if rerr := release(context.WithoutCancel(ctx)); rerr != nil {
				o.logger.WarnContext(ctx, "failed to release resync guard", "error", rerr)
			}
		}()
	}

	start := time.Now()
	summary.Views = o.cfg.Views
	defer func() {
		summary.Duration = time.Since(start)
		result := "ok"
		if err != nil {
			result = "failed"
		}
		o.metrics.ObserveResync(result, summary.Records, summary.Duration)
		span.SetAttributes(
			attribute.Int("records", summary.Records),
			attribute.Int("failures", summary.Failures),
			attribute.String("result", result),
		)
	}()

	o.logger.InfoContext(ctx, "resync started", "views", o.cfg.Views, "batch_size", o.cfg.BatchSize)

	for _, v := range o.cfg.Views {
		if err := o.stores[v].Recreate(ctx); err != nil {
			o.logger.ErrorContext(ctx, "failed to recreate view", "view", v, "error", err)
			return summary, fmt.Errorf("recreate %s view: %w", v, err)
		}
	}

	cursor, err := o.source.OpenCursor(ctx, o.cfg.BatchSize)
	if err != nil {
		o.logger.ErrorContext(ctx, "failed to open master cursor", "error", err)
		return summary, fmt.Errorf("%w: %w", ErrCursorFailed, err)
	}
	defer func() {
		if cerr := cursor.Close(ctx); cerr != nil {
			o.logger.WarnContext(ctx, "failed to close master cursor", "error", cerr)
		}
	}()

	for {
		batch, err := cursor.Next(ctx)
		if err != nil {
			o.logger.ErrorContext(ctx, "master cursor failed",
				"records", summary.Records,
				"batches", summary.Batches,
				"error", err,
			)
			return summary, fmt.Errorf("%w after %d records: %w", ErrCursorFailed, summary.Records, err)
		}
		if len(batch) == 0 {
			break
		}
		summary.Batches++
		for _, rec := range batch {
			summary.Records++
			if !o.reconcile(ctx, rec) {
				summary.Failures++
			}
		}
	}

	o.logger.InfoContext(ctx, "resync finished",
		"records", summary.Records,
		"batches", summary.Batches,
		"failures", summary.Failures,
		"duration", time.Since(start),
	)
	return summary, nil
}

// reconcile reports whether every view write for rec succeeded.
func (o *Orchestrator) reconcile(ctx context.Context, rec *models.Record) bool {
	ok := len(o.reconciler.Reconcile(ctx, rec).Failed()) == 0
	if o.discrepancy != nil {
		if out := o.discrepancy.Project(ctx, rec); !out.OK() {
			ok = false
		}
	}
	return ok
}
