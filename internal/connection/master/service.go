package master

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"connection/internal/connection/metrics"
	"connection/internal/connection/models"
	"connection/internal/connection/reconciler"
	"connection/internal/connection/view"
	"connection/pkg/platform/sentinel"
)

// MergeStatus describes what a merge did to the master.
type MergeStatus string

const (
	MergeStatusCreated MergeStatus = "created"
	MergeStatusMerged  MergeStatus = "merged"
	// MergeStatusUnmatched marks an update for a registry id the master has
	// never seen. Nothing is created.
	MergeStatusUnmatched MergeStatus = "unmatched"
)

// Update sources, used as the metrics label.
const (
	SourceInternal   = "internal"
	SourceRegistry   = "registry"
	SourceCorrection = "correction"
)

// MergeResult reports the records touched by one update and where each
// landed, index-aligned.
type MergeResult struct {
	Status  MergeStatus
	Records []*models.Record
	Views   []models.View
}

// ViewReconciler places a record in its classified view.
type ViewReconciler interface {
	Reconcile(ctx context.Context, rec *models.Record) reconciler.Result
}

// DiscrepancyProjector maintains the discrepancy view for a record.
type DiscrepancyProjector interface {
	Project(ctx context.Context, rec *models.Record) view.Outcome
}

// Service merges partial updates from each source into the master record
// and pushes the merged state through the views.
type Service struct {
	store       Store
	reconciler  ViewReconciler
	discrepancy DiscrepancyProjector
	logger      *slog.Logger
	metrics     *metrics.Metrics
	clock       func() time.Time
	tracer      trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithDiscrepancyProjector enables discrepancy view maintenance on merge.
func WithDiscrepancyProjector(p DiscrepancyProjector) Option {
	return func(s *Service) {
		s.discrepancy = p
	}
}

func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func NewService(store Store, r ViewReconciler, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("master store is required")
	}
	if r == nil {
		return nil, fmt.Errorf("view reconciler is required")
	}
	s := &Service{
		store:      store,
		reconciler: r,
		logger:     slog.New(slog.DiscardHandler),
		clock:      time.Now,
		tracer:     otel.Tracer("connection/master"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// MergeFromInternalSystem applies an internal-system update. Regulator-held
// fields and the submission date already on the master are kept when the
// update does not carry them.
func (s *Service) MergeFromInternalSystem(ctx context.Context, u models.InternalSystemUpdate) (MergeResult, error) {
	key := u.Key()
	ctx, span := s.tracer.Start(ctx, "master.MergeFromInternalSystem", trace.WithAttributes(
		attribute.String("registry_id", key.RegistryID),
		attribute.String("person_id", key.PersonID),
	))
	defer span.End()

	if err := key.Validate(); err != nil {
		return MergeResult{}, err
	}

	incoming := u.ToRecord()
	status := MergeStatusCreated
	existing, err := s.store.FindByKey(ctx, key)
	switch {
	case err == nil:
		status = MergeStatusMerged
		carryForward(incoming, existing)
	case errors.Is(err, sentinel.ErrNotFound):
	default:
		return MergeResult{}, fmt.Errorf("load master record: %w", err)
	}

	result := MergeResult{Status: status}
	if err := s.apply(ctx, incoming, &result); err != nil {
		return result, err
	}
	s.metrics.IncrementMerge(SourceInternal, string(status))
	return result, nil
}

// MergeFromExternalRegistry overlays the regulator's fields on every master
// record for the registry id. Programme fields are left alone.
func (s *Service) MergeFromExternalRegistry(ctx context.Context, u models.RegistryUpdate) (MergeResult, error) {
	registryID := strings.TrimSpace(u.RegistryID)
	ctx, span := s.tracer.Start(ctx, "master.MergeFromExternalRegistry", trace.WithAttributes(
		attribute.String("registry_id", registryID),
	))
	defer span.End()

	records, err := s.findForRegistryID(ctx, registryID)
	if err != nil {
		return MergeResult{}, err
	}
	if len(records) == 0 {
		s.unmatched(ctx, SourceRegistry, registryID)
		return MergeResult{Status: MergeStatusUnmatched}, nil
	}

	result := MergeResult{Status: MergeStatusMerged}
	var errs []error
	for _, rec := range records {
		rec.DesignatedBodyCode = strings.TrimSpace(u.DesignatedBodyCode)
		if u.FirstName != "" {
			rec.FirstName = u.FirstName
		}
		if u.LastName != "" {
			rec.LastName = u.LastName
		}
		if err := s.apply(ctx, rec, &result); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return result, err
	}
	s.metrics.IncrementMerge(SourceRegistry, string(MergeStatusMerged))
	return result, nil
}

// ApplyManualCorrection sets an operator-chosen designated body on every
// master record for the registry id. A previous code that no longer matches
// is logged as stale; the correction still wins.
func (s *Service) ApplyManualCorrection(ctx context.Context, u models.ManualCorrectionUpdate) (MergeResult, error) {
	registryID := strings.TrimSpace(u.RegistryID)
	ctx, span := s.tracer.Start(ctx, "master.ApplyManualCorrection", trace.WithAttributes(
		attribute.String("registry_id", registryID),
	))
	defer span.End()

	records, err := s.findForRegistryID(ctx, registryID)
	if err != nil {
		return MergeResult{}, err
	}
	if len(records) == 0 {
		s.unmatched(ctx, SourceCorrection, registryID)
		return MergeResult{Status: MergeStatusUnmatched}, nil
	}

	newCode := strings.TrimSpace(u.NewDesignatedBodyCode)
	previous := strings.TrimSpace(u.PreviousDesignatedBodyCode)
	result := MergeResult{Status: MergeStatusMerged}
	var errs []error
	for _, rec := range records {
		if previous != "" && !strings.EqualFold(previous, rec.DesignatedBodyCode) {
			s.logger.WarnContext(ctx, "stale manual correction",
				"registry_id", rec.RegistryID,
				"person_id", rec.PersonID,
				"expected_designated_body", previous,
				"current_designated_body", rec.DesignatedBodyCode,
				"reason_code", u.ReasonCode,
			)
		}
		rec.DesignatedBodyCode = newCode
		if err := s.apply(ctx, rec, &result); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return result, err
	}
	s.metrics.IncrementMerge(SourceCorrection, string(MergeStatusMerged))
	return result, nil
}

// apply reconciles rec into the views and persists it. View failures are
// handled by the reconciler; only the master write can fail here.
func (s *Service) apply(ctx context.Context, rec *models.Record, result *MergeResult) error {
	rec.UpdatedAt = s.clock()
	placed := s.reconciler.Reconcile(ctx, rec)
	if s.discrepancy != nil {
		s.discrepancy.Project(ctx, rec)
	}
	if err := s.store.Save(ctx, rec); err != nil {
		attrs := append([]any{"error", err}, rec.Key().LogAttrs()...)
		s.logger.ErrorContext(ctx, "failed to save master record", attrs...)
		return fmt.Errorf("save master record %s: %w", rec.Key(), err)
	}
	result.Records = append(result.Records, rec)
	result.Views = append(result.Views, placed.View)
	return nil
}

func (s *Service) findForRegistryID(ctx context.Context, registryID string) ([]*models.Record, error) {
	if registryID == "" {
		return nil, fmt.Errorf("registry id is required: %w", sentinel.ErrInvalidKey)
	}
	records, err := s.store.FindByRegistryID(ctx, registryID)
	if err != nil {
		return nil, fmt.Errorf("load master records: %w", err)
	}
	return records, nil
}

func (s *Service) unmatched(ctx context.Context, source, registryID string) {
	s.metrics.IncrementMerge(source, string(MergeStatusUnmatched))
	s.logger.WarnContext(ctx, "registry_record_unmatched",
		"source", source,
		"registry_id", registryID,
	)
}

// carryForward fills fields the internal system does not own from the
// existing master record when the update left them empty.
func carryForward(incoming, existing *models.Record) {
	incoming.ID = existing.ID
	if incoming.DesignatedBodyCode == "" {
		incoming.DesignatedBodyCode = existing.DesignatedBodyCode
	}
	if incoming.FirstName == "" {
		incoming.FirstName = existing.FirstName
	}
	if incoming.LastName == "" {
		incoming.LastName = existing.LastName
	}
	if incoming.SubmissionDate == nil {
		incoming.SubmissionDate = existing.SubmissionDate
	}
}
