package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"connection/internal/connection/export"
	"connection/internal/connection/models"
	"connection/internal/connection/query"
	"connection/internal/connection/resync"
	"connection/pkg/platform/httputil"
	"connection/pkg/platform/sentinel"
)

// Searcher runs paged view searches.
type Searcher interface {
	Search(ctx context.Context, v models.View, criteria models.Criteria) (models.Page, error)
}

// Resyncer rebuilds the views from the master.
type Resyncer interface {
	Run(ctx context.Context) (resync.Summary, error)
}

// Exporter uploads the discrepancy view.
type Exporter interface {
	Export(ctx context.Context, criteria models.Criteria) (export.Result, error)
}

// Handler wires the connection read API and admin operations.
type Handler struct {
	searcher Searcher
	resyncer Resyncer
	exporter Exporter
	logger   *slog.Logger
}

// New constructs a handler. exporter may be nil when no bucket is configured.
func New(searcher Searcher, resyncer Resyncer, exporter Exporter, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handler{
		searcher: searcher,
		resyncer: resyncer,
		exporter: exporter,
		logger:   logger,
	}
}

// Register mounts the connection endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/api/v1/connections/{view}", h.HandleSearch)
	r.Post("/api/v1/admin/resync", h.HandleResync)
	r.Post("/api/v1/admin/discrepancies/export", h.HandleExport)
}

// HandleSearch handles GET /api/v1/connections/{view}.
func (h *Handler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	v, err := models.ParseView(chi.URLParam(r, "view"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	criteria, err := parseCriteria(r.URL.Query())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	page, err := h.searcher.Search(ctx, v, criteria)
	if err != nil {
		var qe *query.QueryError
		if errors.As(err, &qe) {
			h.logger.WarnContext(ctx, "serving degraded search response", "view", v, "error", err)
		}
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromPage(page))
}

// HandleResync handles POST /api/v1/admin/resync. The run is synchronous so
// the caller receives the summary.
func (h *Handler) HandleResync(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()
	summary, err := h.resyncer.Run(context.WithoutCancel(ctx))
	if err != nil {
		h.logger.ErrorContext(ctx, "admin resync failed", "error", err)
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "admin resync completed",
		"records", summary.Records,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusAccepted, FromSummary(summary))
}

// HandleExport handles POST /api/v1/admin/discrepancies/export.
func (h *Handler) HandleExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.exporter == nil {
		httputil.WriteError(w, &httputil.Error{
			Status:  http.StatusServiceUnavailable,
			Code:    "export_disabled",
			Message: "no export bucket configured",
		})
		return
	}
	criteria, err := parseCriteria(r.URL.Query())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	res, err := h.exporter.Export(ctx, criteria)
	if err != nil {
		h.logger.ErrorContext(ctx, "discrepancy export failed", "error", err)
		httputil.WriteError(w, errors.Join(err, sentinel.ErrUnavailable))
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, res)
}
