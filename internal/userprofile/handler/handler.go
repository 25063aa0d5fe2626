package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"findiff/internal/userprofile/catalog"
	"findiff/internal/userprofile/models"
	"findiff/internal/userprofile/service"
	id "findiff/pkg/domain"
	dErrors "findiff/pkg/domain-errors"
	"findiff/pkg/platform/httputil"
	authmw "findiff/pkg/platform/middleware/auth"
	"findiff/pkg/platform/paging"
	"findiff/pkg/requestcontext"
)

// Service is the user management surface the handler needs.
type Service interface {
	CreateUser(ctx context.Context, cmd service.CreateUserCommand) (*models.User, error)
	GetUser(ctx context.Context, userID id.UserID) (*models.User, error)
	ListUsers(ctx context.Context, search string, page paging.Page) (paging.Result[*models.User], error)
	SetActive(ctx context.Context, userID id.UserID, active bool) (*models.User, error)
	ChangePassword(ctx context.Context, userID id.UserID, cmd service.ChangePasswordCommand) error
	AssignRoles(ctx context.Context, userIDs []id.UserID, roleIDs []id.RoleID) error
	CreateRole(ctx context.Context, name string, perms []string) (*models.Role, error)
	UpdateRole(ctx context.Context, roleID id.RoleID, name string, perms []string) (*models.Role, error)
	DeleteRole(ctx context.Context, roleID id.RoleID) error
	ListRoles(ctx context.Context, search string) ([]*models.Role, error)
	RoleOptions(ctx context.Context) ([]service.RoleOption, error)
	Permissions() []models.Permission
	HasAnyPerm(ctx context.Context, userID id.UserID, codenames ...string) (bool, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(svc Service, logger *slog.Logger) *Handler {
	return &Handler{service: svc, logger: logger}
}

// Register mounts user, role and permission routes on an authenticated router.
func (h *Handler) Register(r chi.Router) {
	perm := func(codenames ...string) func(http.Handler) http.Handler {
		return authmw.RequirePerms(h.service, h.logger, codenames...)
	}

	r.Route("/users", func(r chi.Router) {
		r.With(perm(catalog.PermCheckUserList)).Get("/", h.handleListUsers)
		r.With(perm(catalog.PermAssignRoleAct)).Post("/", h.handleCreateUser)
		r.Post("/me/password", h.handleChangePassword)
		r.With(perm(catalog.PermAssignRole)).Post("/roles/assign", h.handleAssignRoles)
		r.With(perm(catalog.PermCheckUserList)).Get("/{id}", h.handleGetUser)
		r.With(perm(catalog.PermAssignRoleAct)).Patch("/{id}/active", h.handleSetActive)
	})
	r.Route("/roles", func(r chi.Router) {
		r.With(perm(catalog.PermCheckUserGroup)).Get("/", h.handleListRoles)
		r.With(perm(catalog.PermAddUserGroup)).Post("/", h.handleCreateRole)
		r.With(perm(catalog.PermCheckUserGroup, catalog.PermAssignRole)).Get("/options", h.handleRoleOptions)
		r.With(perm(catalog.PermEditUserGroup)).Put("/{id}", h.handleUpdateRole)
		r.With(perm(catalog.PermDeleteUserGroup)).Delete("/{id}", h.handleDeleteRole)
	})
	r.With(perm(catalog.PermCheckUserGroup)).Get("/permissions", h.handlePermissions)
}

// RegisterAdmin mounts bootstrap routes. The caller guards them with the
// admin token middleware.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/admin/superusers", h.handleCreateSuperuser)
}

func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	res, err := h.service.ListUsers(ctx, r.URL.Query().Get("search"), paging.FromRequest(r))
	if err != nil {
		h.fail(ctx, w, "failed to list users", err)
		return
	}
	out := make([]UserResponse, 0, len(res.Items))
	for _, u := range res.Items {
		out = append(out, FromUser(u))
	}
	httputil.WriteJSON(w, http.StatusOK, paging.Result[UserResponse]{
		Items: out, Total: res.Total, Page: res.Page, Size: res.Size,
	})
}

func (h *Handler) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[CreateUserRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	user, err := h.service.CreateUser(ctx, service.CreateUserCommand{
		Username: req.Username,
		Password: req.Password,
		Nickname: req.Nickname,
		Email:    req.Email,
		RoleIDs:  req.roleIDs,
	})
	if err != nil {
		h.fail(ctx, w, "failed to create user", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, FromUser(user))
}

func (h *Handler) handleCreateSuperuser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[CreateSuperuserRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	user, err := h.service.CreateUser(ctx, service.CreateUserCommand{
		Username:  req.Username,
		Password:  req.Password,
		Email:     req.Email,
		Superuser: true,
	})
	if err != nil {
		h.fail(ctx, w, "failed to create superuser", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, FromUser(user))
}

func (h *Handler) handleGetUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := id.ParseUserID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	user, err := h.service.GetUser(ctx, userID)
	if err != nil {
		h.fail(ctx, w, "failed to get user", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromUser(user))
}

func (h *Handler) handleSetActive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := id.ParseUserID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[SetActiveRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	user, err := h.service.SetActive(ctx, userID, *req.IsActive)
	if err != nil {
		h.fail(ctx, w, "failed to update user", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromUser(user))
}

func (h *Handler) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[ChangePasswordRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	err := h.service.ChangePassword(ctx, requestcontext.UserID(ctx), service.ChangePasswordCommand{
		Origin: req.OriginPassword,
		New:    req.NewPassword,
		Repeat: req.RepeatPassword,
	})
	if err != nil {
		h.fail(ctx, w, "failed to change password", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleAssignRoles(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[AssignRolesRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	if err := h.service.AssignRoles(ctx, req.userIDs, req.roleIDs); err != nil {
		h.fail(ctx, w, "failed to assign roles", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListRoles(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	roles, err := h.service.ListRoles(ctx, r.URL.Query().Get("search"))
	if err != nil {
		h.fail(ctx, w, "failed to list roles", err)
		return
	}
	if roles == nil {
		roles = []*models.Role{}
	}
	httputil.WriteJSON(w, http.StatusOK, roles)
}

func (h *Handler) handleCreateRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[RoleRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	role, err := h.service.CreateRole(ctx, req.Name, req.Perms)
	if err != nil {
		h.fail(ctx, w, "failed to create role", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, role)
}

func (h *Handler) handleUpdateRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	roleID, err := id.ParseRoleID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[RoleRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	role, err := h.service.UpdateRole(ctx, roleID, req.Name, req.Perms)
	if err != nil {
		h.fail(ctx, w, "failed to update role", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, role)
}

func (h *Handler) handleDeleteRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	roleID, err := id.ParseRoleID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.DeleteRole(ctx, roleID); err != nil {
		h.fail(ctx, w, "failed to delete role", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRoleOptions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	opts, err := h.service.RoleOptions(ctx)
	if err != nil {
		h.fail(ctx, w, "failed to list role options", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, opts)
}

func (h *Handler) handlePermissions(w http.ResponseWriter, r *http.Request) {
	var groups []PermissionGroup
	for _, p := range h.service.Permissions() {
		if n := len(groups); n == 0 || groups[n-1].Module != p.Module {
			groups = append(groups, PermissionGroup{Module: p.Module})
		}
		last := &groups[len(groups)-1]
		last.Perms = append(last.Perms, p)
	}
	httputil.WriteJSON(w, http.StatusOK, groups)
}

// fail logs server-side failures at error level and client mistakes at warn,
// then writes the mapped response.
func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg, "request_id", requestcontext.RequestID(ctx), "error", err)
	} else {
		h.logger.WarnContext(ctx, msg, "request_id", requestcontext.RequestID(ctx), "error", err)
	}
	httputil.WriteError(w, err)
}
