package roles

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/conformapro/conformapro/internal/platform/httpx"
	"github.com/conformapro/conformapro/internal/rbac"
	"github.com/conformapro/conformapro/internal/shared"
)

// Handler manages role management endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
	rbac      rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New(), rbac: rbac}
}

// MountRoutes registers role routes.
func (h *Handler) MountRoutes(r chi.Router) {
	guard := func(action string) func(http.Handler) http.Handler {
		return h.rbac.RequirePermission(shared.ModuleRoles, action)
	}
	r.With(guard(shared.ActionView)).Get("/", h.listRoles)
	r.With(guard(shared.ActionCreate)).Post("/", h.createRole)
	r.With(guard(shared.ActionView)).Get("/audit-logs", h.auditLogs)
	r.Route("/{roleID}", func(r chi.Router) {
		r.With(guard(shared.ActionView)).Get("/", h.getRole)
		r.With(guard(shared.ActionEdit)).Patch("/", h.updateRole)
		r.With(guard(shared.ActionDelete)).Delete("/", h.deleteRole)
		r.With(guard(shared.ActionEdit)).Post("/archive", h.archiveRole)
		r.With(guard(shared.ActionEdit)).Post("/restore", h.restoreRole)
		r.With(guard(shared.ActionCreate)).Post("/clone", h.cloneRole)
		r.With(guard(shared.ActionView)).Get("/permissions", h.listPermissions)
		r.With(guard(shared.ActionEdit)).Put("/permissions", h.setPermissions)
		r.With(guard(shared.ActionEdit)).Post("/apply-template", h.applyTemplate)
		r.With(guard(shared.ActionView)).Get("/users", h.listMembers)
		r.With(guard(shared.ActionAssign)).Post("/users", h.assignUsers)
		r.With(guard(shared.ActionAssign)).Delete("/users", h.removeUsers)
	})
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	typ := rbac.RoleType(r.URL.Query().Get("type"))
	if typ == "" {
		typ = rbac.RoleTypeTeam
	}
	roles, err := h.service.ListByType(r.Context(), typ, r.URL.Query().Get("tenant_id"))
	if err != nil {
		h.fail(w, "list roles", err)
		return
	}
	httpx.JSON(w, http.StatusOK, roles)
}

func (h *Handler) getRole(w http.ResponseWriter, r *http.Request) {
	role, err := h.service.Get(r.Context(), chi.URLParam(r, "roleID"))
	if err != nil {
		h.fail(w, "get role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	var req CreateInput
	if !h.decode(w, r, &req) {
		return
	}
	role, err := h.service.Create(r.Context(), shared.ActorID(r.Context()), req)
	if err != nil {
		h.fail(w, "create role", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, role)
}

func (h *Handler) updateRole(w http.ResponseWriter, r *http.Request) {
	var req UpdateInput
	if !h.decode(w, r, &req) {
		return
	}
	role, err := h.service.Update(r.Context(), shared.ActorID(r.Context()), chi.URLParam(r, "roleID"), req)
	if err != nil {
		h.fail(w, "update role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) archiveRole(w http.ResponseWriter, r *http.Request) {
	role, err := h.service.Archive(r.Context(), shared.ActorID(r.Context()), chi.URLParam(r, "roleID"))
	if err != nil {
		h.fail(w, "archive role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) restoreRole(w http.ResponseWriter, r *http.Request) {
	role, err := h.service.Restore(r.Context(), shared.ActorID(r.Context()), chi.URLParam(r, "roleID"))
	if err != nil {
		h.fail(w, "restore role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

type cloneRequest struct {
	Name string `json:"name" validate:"required,max=120"`
}

func (h *Handler) cloneRole(w http.ResponseWriter, r *http.Request) {
	var req cloneRequest
	if !h.decode(w, r, &req) {
		return
	}
	role, err := h.service.Clone(r.Context(), shared.ActorID(r.Context()), chi.URLParam(r, "roleID"), req.Name)
	if err != nil {
		h.fail(w, "clone role", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, role)
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), shared.ActorID(r.Context()), chi.URLParam(r, "roleID")); err != nil {
		h.fail(w, "delete role", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.service.Permissions(r.Context(), chi.URLParam(r, "roleID"))
	if err != nil {
		h.fail(w, "list role permissions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, perms)
}

type setPermissionsRequest struct {
	Permissions []PermissionInput `json:"permissions" validate:"dive"`
}

func (h *Handler) setPermissions(w http.ResponseWriter, r *http.Request) {
	var req setPermissionsRequest
	if !h.decode(w, r, &req) {
		return
	}
	perms, err := h.service.SetPermissions(r.Context(), shared.ActorID(r.Context()), chi.URLParam(r, "roleID"), req.Permissions)
	if err != nil {
		h.fail(w, "set role permissions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, perms)
}

type applyTemplateRequest struct {
	TemplateID  string   `json:"template_id" validate:"required_without=TemplateIDs"`
	TemplateIDs []string `json:"template_ids" validate:"omitempty,dive,required"`
}

func (r applyTemplateRequest) ids() []string {
	if len(r.TemplateIDs) > 0 {
		return r.TemplateIDs
	}
	return []string{r.TemplateID}
}

func (h *Handler) applyTemplate(w http.ResponseWriter, r *http.Request) {
	var req applyTemplateRequest
	if !h.decode(w, r, &req) {
		return
	}
	perms, err := h.service.ApplyTemplate(r.Context(), shared.ActorID(r.Context()), chi.URLParam(r, "roleID"), req.ids()...)
	if err != nil {
		h.fail(w, "apply permission template", err)
		return
	}
	httpx.JSON(w, http.StatusOK, perms)
}

func (h *Handler) listMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.service.Members(r.Context(), chi.URLParam(r, "roleID"))
	if err != nil {
		h.fail(w, "list role users", err)
		return
	}
	httpx.JSON(w, http.StatusOK, members)
}

type countResponse struct {
	Count int64 `json:"count"`
}

func (h *Handler) assignUsers(w http.ResponseWriter, r *http.Request) {
	var req AssignInput
	if !h.decode(w, r, &req) {
		return
	}
	n, err := h.service.AssignUsers(r.Context(), shared.ActorID(r.Context()), chi.URLParam(r, "roleID"), req)
	if err != nil {
		h.fail(w, "assign role users", err)
		return
	}
	httpx.JSON(w, http.StatusOK, countResponse{Count: n})
}

type removeUsersRequest struct {
	UserIDs []string `json:"user_ids" validate:"required,min=1,dive,uuid"`
}

func (h *Handler) removeUsers(w http.ResponseWriter, r *http.Request) {
	var req removeUsersRequest
	if !h.decode(w, r, &req) {
		return
	}
	n, err := h.service.RemoveUsers(r.Context(), shared.ActorID(r.Context()), chi.URLParam(r, "roleID"), req.UserIDs)
	if err != nil {
		h.fail(w, "remove role users", err)
		return
	}
	httpx.JSON(w, http.StatusOK, countResponse{Count: n})
}

func (h *Handler) auditLogs(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 || n > 500 {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "limit must be between 0 and 500")
			return
		}
		limit = n
	}
	logs, err := h.service.AuditLogs(r.Context(), r.URL.Query().Get("entity_id"), limit)
	if err != nil {
		h.fail(w, "list role audit logs", err)
		return
	}
	httpx.JSON(w, http.StatusOK, logs)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httpx.DecodeJSON(r, dst); err != nil {
		httpx.RespondValidation(w, err)
		return false
	}
	if err := h.validator.Struct(dst); err != nil {
		httpx.RespondValidation(w, err)
		return false
	}
	return true
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	h.logger.Error(op, slog.Any("error", err))
	httpx.RespondError(w, err)
}
