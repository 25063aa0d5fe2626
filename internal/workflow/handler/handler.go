// Package handler exposes the review pipeline under /orders and /qa.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"findiff/internal/userprofile/catalog"
	upmodels "findiff/internal/userprofile/models"
	"findiff/internal/workflow/models"
	"findiff/internal/workflow/service"
	id "findiff/pkg/domain"
	dErrors "findiff/pkg/domain-errors"
	"findiff/pkg/platform/httputil"
	authmw "findiff/pkg/platform/middleware/auth"
	"findiff/pkg/platform/paging"
	"findiff/pkg/requestcontext"
)

const DefaultMaxUpload = 10 << 20

type Service interface {
	Apply(ctx context.Context, requested models.ReviewStatus) (*models.Order, error)
	Submit(ctx context.Context, orderID id.OrderID, res models.ReviewResult) (*models.Order, error)
	Suspend(ctx context.Context, orderID id.OrderID, draft models.ReviewResult) (*models.Order, error)
	Return(ctx context.Context, orderID id.OrderID, remark string) (*models.Order, error)
	InitOrder(ctx context.Context, cmd service.InitCommand) (*models.Order, error)
	Get(ctx context.Context, orderID id.OrderID) (*service.OrderDetail, error)
	List(ctx context.Context, filter models.OrderFilter, page paging.Page) (paging.Result[*models.Order], error)
	Delete(ctx context.Context, orderID id.OrderID) error
	History(ctx context.Context, orderID id.OrderID) (*service.History, error)

	ListBooks(ctx context.Context) ([]*service.BookRow, error)
	ApplyQA(ctx context.Context, bookID id.BookID) ([]*models.Order, error)
	Sample(ctx context.Context, bookID id.BookID, ratio int) (*service.SampleResult, error)
	QAOrders(ctx context.Context, bulkID string, page paging.Page) (paging.Result[*service.OrderDetail], error)
	SubmitQA(ctx context.Context, bookID id.BookID) ([]id.OrderID, error)
	ReturnQA(ctx context.Context, orderIDs []id.OrderID, remark string) ([]*models.Order, error)
	AssignQA(ctx context.Context, bookIDs []id.BookID, target id.UserID) ([]*models.Order, error)
	Staff(ctx context.Context) ([]*upmodels.User, error)
}

type Handler struct {
	service   Service
	perms     authmw.PermissionChecker
	logger    *slog.Logger
	maxUpload int64
}

// New builds the handler. maxUpload bounds the multipart body of order
// initialisation; zero uses DefaultMaxUpload.
func New(svc Service, perms authmw.PermissionChecker, logger *slog.Logger, maxUpload int64) *Handler {
	if maxUpload <= 0 {
		maxUpload = DefaultMaxUpload
	}
	return &Handler{service: svc, perms: perms, logger: logger, maxUpload: maxUpload}
}

type results[T any] struct {
	Results []T `json:"results"`
}

func (h *Handler) Register(r chi.Router) {
	perm := func(codenames ...string) func(http.Handler) http.Handler {
		return authmw.RequirePerms(h.perms, h.logger, codenames...)
	}
	r.Route("/orders", func(r chi.Router) {
		r.With(perm(catalog.PermListAuditOrder)).Get("/", h.handleList)
		r.With(perm(catalog.PermCreateAuditOrder)).Post("/init", h.handleInit)
		r.With(perm(catalog.PermApplyAuditOrder)).Post("/apply", h.handleApply)
		r.With(perm(catalog.PermReturnedAuditOrder)).Post("/return", h.handleReturn)
		r.With(perm(catalog.PermScanAuditOrder)).Get("/{id}", h.handleGet)
		r.With(perm(catalog.PermScanAuditOrder)).Get("/{id}/history", h.handleHistory)
		r.With(perm(catalog.PermDeleteAuditOrder)).Delete("/{id}", h.handleDelete)
		r.With(perm(catalog.PermSubmitAuditOrder)).Post("/{id}/submit", h.handleSubmit)
		r.With(perm(catalog.PermSubmitAuditOrder)).Post("/{id}/suspend", h.handleSuspend)
	})
	r.Route("/qa", func(r chi.Router) {
		r.With(perm(catalog.PermListQAOrder, catalog.PermAssignQAOrder)).Get("/books", h.handleQABooks)
		r.With(perm(catalog.PermApplyQAOrder)).Post("/apply", h.handleQAApply)
		r.With(perm(catalog.PermApplyQAOrder)).Post("/sample", h.handleQASample)
		r.With(perm(catalog.PermApplyQAOrder)).Get("/orders", h.handleQAOrders)
		r.With(perm(catalog.PermSubmitQAOrder)).Post("/submit", h.handleQASubmit)
		r.With(perm(catalog.PermReturnedQAOrder)).Post("/return", h.handleQAReturn)
		r.With(perm(catalog.PermAssignQAOrder)).Post("/assign", h.handleQAAssign)
		r.With(perm(catalog.PermAssignQAOrder)).Get("/staff", h.handleQAStaff)
	})
}

func decode[T any](h *Handler, w http.ResponseWriter, r *http.Request) (*T, bool) {
	ctx := r.Context()
	return httputil.DecodeAndPrepare[T](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
}

func pathOrderID(w http.ResponseWriter, r *http.Request) (id.OrderID, bool) {
	orderID, err := id.ParseOrderID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return orderID, false
	}
	return orderID, true
}

// Orders

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	filter, err := orderFilterFromQuery(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	res, err := h.service.List(r.Context(), filter, paging.FromRequest(r))
	h.respond(w, r, http.StatusOK, res, err, "failed to list orders")
}

func (h *Handler) handleInit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+1<<20)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		h.fail(r.Context(), w, "failed to parse upload", dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid multipart upload"))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	cmd, closeImage, err := initCommandFromForm(r)
	if err != nil {
		h.fail(r.Context(), w, "invalid order upload", err)
		return
	}
	defer closeImage()
	o, err := h.service.InitOrder(r.Context(), cmd)
	h.respond(w, r, http.StatusCreated, o, err, "failed to create order")
}

func (h *Handler) handleApply(w http.ResponseWriter, r *http.Request) {
	req, ok := decode[ApplyRequest](h, w, r)
	if !ok {
		return
	}
	o, err := h.service.Apply(r.Context(), models.ReviewStatus(req.AuditStatus))
	h.respond(w, r, http.StatusOK, o, err, "failed to apply for order")
}

func (h *Handler) handleReturn(w http.ResponseWriter, r *http.Request) {
	req, ok := decode[ReturnRequest](h, w, r)
	if !ok {
		return
	}
	o, err := h.service.Return(r.Context(), req.orderID, req.ReturnedRemark)
	h.respond(w, r, http.StatusOK, o, err, "failed to return order")
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathOrderID(w, r)
	if !ok {
		return
	}
	d, err := h.service.Get(r.Context(), orderID)
	h.respond(w, r, http.StatusOK, d, err, "failed to get order")
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathOrderID(w, r)
	if !ok {
		return
	}
	hist, err := h.service.History(r.Context(), orderID)
	h.respond(w, r, http.StatusOK, hist, err, "failed to load order history")
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathOrderID(w, r)
	if !ok {
		return
	}
	h.noContent(w, r, h.service.Delete(r.Context(), orderID), "failed to delete order")
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathOrderID(w, r)
	if !ok {
		return
	}
	req, ok := decode[ResultRequest](h, w, r)
	if !ok {
		return
	}
	o, err := h.service.Submit(r.Context(), orderID, req.result())
	h.respond(w, r, http.StatusOK, o, err, "failed to submit order")
}

func (h *Handler) handleSuspend(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathOrderID(w, r)
	if !ok {
		return
	}
	req, ok := decode[ResultRequest](h, w, r)
	if !ok {
		return
	}
	o, err := h.service.Suspend(r.Context(), orderID, req.result())
	h.respond(w, r, http.StatusOK, o, err, "failed to suspend order")
}

// QA

func (h *Handler) handleQABooks(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.ListBooks(r.Context())
	h.respond(w, r, http.StatusOK, results[*service.BookRow]{Results: rows}, err, "failed to list qa books")
}

func (h *Handler) handleQAApply(w http.ResponseWriter, r *http.Request) {
	req, ok := decode[BookRequest](h, w, r)
	if !ok {
		return
	}
	orders, err := h.service.ApplyQA(r.Context(), req.bookID)
	h.respond(w, r, http.StatusOK, results[*models.Order]{Results: orders}, err, "failed to apply for qa")
}

func (h *Handler) handleQASample(w http.ResponseWriter, r *http.Request) {
	req, ok := decode[SampleRequest](h, w, r)
	if !ok {
		return
	}
	res, err := h.service.Sample(r.Context(), req.bookID, req.QARatio)
	h.respond(w, r, http.StatusOK, res, err, "failed to sample qa orders")
}

func (h *Handler) handleQAOrders(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.QAOrders(r.Context(), r.URL.Query().Get("bulk_id"), paging.FromRequest(r))
	h.respond(w, r, http.StatusOK, res, err, "failed to list qa orders")
}

func (h *Handler) handleQASubmit(w http.ResponseWriter, r *http.Request) {
	req, ok := decode[BookRequest](h, w, r)
	if !ok {
		return
	}
	passed, err := h.service.SubmitQA(r.Context(), req.bookID)
	h.respond(w, r, http.StatusOK, results[id.OrderID]{Results: passed}, err, "failed to submit qa")
}

func (h *Handler) handleQAReturn(w http.ResponseWriter, r *http.Request) {
	req, ok := decode[QAReturnRequest](h, w, r)
	if !ok {
		return
	}
	orders, err := h.service.ReturnQA(r.Context(), req.orderIDs, req.ReturnedRemark)
	h.respond(w, r, http.StatusOK, results[*models.Order]{Results: orders}, err, "failed to return qa orders")
}

func (h *Handler) handleQAAssign(w http.ResponseWriter, r *http.Request) {
	req, ok := decode[AssignRequest](h, w, r)
	if !ok {
		return
	}
	orders, err := h.service.AssignQA(r.Context(), req.bookIDs, req.target)
	h.respond(w, r, http.StatusOK, results[*models.Order]{Results: orders}, err, "failed to assign qa")
}

func (h *Handler) handleQAStaff(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.Staff(r.Context())
	h.respond(w, r, http.StatusOK, results[*upmodels.User]{Results: users}, err, "failed to list qa staff")
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, status int, body any, err error, msg string) {
	if err != nil {
		h.fail(r.Context(), w, msg, err)
		return
	}
	httputil.WriteJSON(w, status, body)
}

func (h *Handler) noContent(w http.ResponseWriter, r *http.Request, err error, msg string) {
	if err != nil {
		h.fail(r.Context(), w, msg, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg, "request_id", requestcontext.RequestID(ctx), "error", err)
	} else {
		h.logger.WarnContext(ctx, msg, "request_id", requestcontext.RequestID(ctx), "error", err)
	}
	httputil.WriteError(w, err)
}
