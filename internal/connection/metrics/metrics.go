package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for connection reconciliation.
type Metrics struct {
	// Reconciled records by target view
	Classified *prometheus.CounterVec

	// Best-effort view writes that failed, by view and op
	ViewWriteFailures *prometheus.CounterVec

	// Merges by source and status (merged, created, unmatched)
	Merges *prometheus.CounterVec

	// Resync runs by result, records streamed and run duration
	ResyncRuns     *prometheus.CounterVec
	ResyncRecords  prometheus.Counter
	ResyncDuration prometheus.Histogram

	// Search failures surfaced to callers
	QueryFailures *prometheus.CounterVec
}

// New creates a Metrics instance registered with the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers the metrics on reg; tests pass a fresh registry.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Classified: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "connection_reconciled_total",
			Help: "Records reconciled into a view",
		}, []string{"view"}),

		ViewWriteFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "connection_view_write_failures_total",
			Help: "View store writes that failed and were skipped",
		}, []string{"view", "op"}),

		Merges: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "connection_master_merges_total",
			Help: "Master record merges by source and status",
		}, []string{"source", "status"}),

		ResyncRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "connection_resync_runs_total",
			Help: "Bulk resync runs by result",
		}, []string{"result"}),

		ResyncRecords: factory.NewCounter(prometheus.CounterOpts{
			Name: "connection_resync_records_total",
			Help: "Master records streamed through bulk resync",
		}),

		ResyncDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "connection_resync_duration_seconds",
			Help:    "Duration of bulk resync runs",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}),

		QueryFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "connection_query_failures_total",
			Help: "View searches that failed",
		}, []string{"view"}),
	}
}

// IncrementClassified records a reconcile into view.
func (m *Metrics) IncrementClassified(view string) {
	if m != nil {
		m.Classified.WithLabelValues(view).Inc()
	}
}

// IncrementViewWriteFailure records a skipped view write.
func (m *Metrics) IncrementViewWriteFailure(view, op string) {
	if m != nil {
		m.ViewWriteFailures.WithLabelValues(view, op).Inc()
	}
}

// IncrementMerge records a master merge.
func (m *Metrics) IncrementMerge(source, status string) {
	if m != nil {
		m.Merges.WithLabelValues(source, status).Inc()
	}
}

// ObserveResync records a finished resync run.
func (m *Metrics) ObserveResync(result string, records int, d time.Duration) {
	if m != nil {
		m.ResyncRuns.WithLabelValues(result).Inc()
		m.ResyncRecords.Add(float64(records))
		m.ResyncDuration.Observe(d.Seconds())
	}
}

// IncrementQueryFailure records a failed search.
func (m *Metrics) IncrementQueryFailure(view string) {
	if m != nil {
		m.QueryFailures.WithLabelValues(view).Inc()
	}
}
