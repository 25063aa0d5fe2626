// Package handler exposes the KPI summary.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"findiff/internal/kpi/models"
	"findiff/internal/userprofile/catalog"
	id "findiff/pkg/domain"
	dErrors "findiff/pkg/domain-errors"
	"findiff/pkg/platform/httputil"
	authmw "findiff/pkg/platform/middleware/auth"
	"findiff/pkg/requestcontext"
)

type Service interface {
	Summary(ctx context.Context, filter models.Filter) ([]*models.SummaryRow, error)
}

type Handler struct {
	service Service
	perms   authmw.PermissionChecker
	logger  *slog.Logger
}

func New(svc Service, perms authmw.PermissionChecker, logger *slog.Logger) *Handler {
	return &Handler{service: svc, perms: perms, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.With(authmw.RequirePerms(h.perms, h.logger, catalog.PermListUserKPI)).Get("/kpi", h.handleSummary)
}

type summaryResponse struct {
	Results []*models.SummaryRow `json:"results"`
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	filter, err := filterFromQuery(r)
	if err != nil {
		h.fail(ctx, w, "invalid kpi filter", err)
		return
	}
	rows, err := h.service.Summary(ctx, filter)
	if err != nil {
		h.fail(ctx, w, "failed to load kpi", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, summaryResponse{Results: rows})
}

func filterFromQuery(r *http.Request) (models.Filter, error) {
	f := models.Filter{Search: r.URL.Query().Get("search")}
	if raw := r.URL.Query().Get("user_id"); raw != "" {
		userID, err := id.ParseUserID(raw)
		if err != nil {
			return f, err
		}
		f.UserID = userID
	}
	var err error
	if f.Created.From, err = httputil.QueryTime(r, "created_from"); err != nil {
		return f, err
	}
	if f.Created.To, err = httputil.QueryTime(r, "created_to"); err != nil {
		return f, err
	}
	return f, nil
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg, "request_id", requestcontext.RequestID(ctx), "error", err)
	} else {
		h.logger.WarnContext(ctx, msg, "request_id", requestcontext.RequestID(ctx), "error", err)
	}
	httputil.WriteError(w, err)
}
