package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"connection/internal/connection/metrics"
	"connection/internal/connection/models"
	"connection/internal/connection/view"
	"connection/pkg/platform/sentinel"
)

// QueryError reports a search the view store could not serve. Callers get a
// degraded response instead of a partial page.
type QueryError struct {
	View     models.View
	Criteria models.Criteria
	Err      error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("search %s view: %v", e.View, e.Err)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

// Is lets callers match a QueryError against sentinel.ErrUnavailable.
func (e *QueryError) Is(target error) bool {
	return target == sentinel.ErrUnavailable
}

// Service runs paged searches against the view stores.
type Service struct {
	stores  map[models.View]view.Store
	logger  *slog.Logger
	metrics *metrics.Metrics
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

func New(stores []view.Store, opts ...Option) (*Service, error) {
	if len(stores) == 0 {
		return nil, fmt.Errorf("at least one view store is required")
	}
	s := &Service{
		stores: make(map[models.View]view.Store, len(stores)),
		logger: slog.New(slog.DiscardHandler),
	}
	for _, st := range stores {
		if st == nil {
			return nil, fmt.Errorf("view store is required")
		}
		s.stores[st.View()] = st
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Search returns one page of v matching criteria after normalisation.
// Unknown views yield sentinel.ErrNotFound; store failures yield *QueryError.
func (s *Service) Search(ctx context.Context, v models.View, criteria models.Criteria) (models.Page, error) {
	st, ok := s.stores[v]
	if !ok {
		return models.Page{}, fmt.Errorf("view %q: %w", v, sentinel.ErrNotFound)
	}
	criteria = criteria.Normalize()

	page, err := st.Search(ctx, criteria)
	if err != nil {
		s.metrics.IncrementQueryFailure(v.String())
		s.logger.ErrorContext(ctx, "view search failed",
			"view", v,
			"page", criteria.Page,
			"page_size", criteria.PageSize,
			"error", err,
		)
		var qe *QueryError
		if errors.As(err, &qe) {
			return models.Page{}, qe
		}
		return models.Page{}, &QueryError{View: v, Criteria: criteria, Err: err}
	}
	if page.Records == nil {
		page.Records = []models.Projection{}
	}
	return page, nil
}
