package sitemodules

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/conformapro/conformapro/internal/platform/httpx"
	"github.com/conformapro/conformapro/internal/rbac"
	"github.com/conformapro/conformapro/internal/shared"
)

// Handler exposes module visibility and site module administration.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	rbac      rbac.Middleware
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbac, validator: validator.New()}
}

// MountRoutes registers module routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.rbac.RequireRoles()).Get("/me/modules", h.myModules)
	r.With(h.rbac.RequirePermission(shared.ModuleSites, shared.ActionView)).Get("/modules", h.catalogue)
	r.Route("/sites/{siteID}", func(r chi.Router) {
		r.With(h.rbac.RequirePermission(shared.ModuleSites, shared.ActionView)).Get("/modules", h.listSiteModules)
		r.Group(func(r chi.Router) {
			r.Use(h.rbac.RequirePermission(shared.ModuleSites, shared.ActionEdit))
			r.Put("/modules", h.setSiteModules)
			r.Put("/modules/{moduleID}", h.enableModule)
			r.Delete("/modules/{moduleID}", h.disableModule)
		})
		r.With(h.rbac.RequirePermission(shared.ModuleUtilisateurs, shared.ActionView)).Get("/users/{userID}/permissions", h.userPermissions)
		r.With(h.rbac.RequirePermission(shared.ModuleUtilisateurs, shared.ActionEdit)).Put("/users/{userID}/permissions", h.setUserPermissions)
	})
}

func (h *Handler) myModules(w http.ResponseWriter, r *http.Request) {
	mods, err := h.service.ModulesForUser(r.Context(), rbac.AccessFromContext(r.Context()), r.URL.Query().Get("site_id"))
	if err != nil {
		h.fail(w, "modules for user", err)
		return
	}
	httpx.JSON(w, http.StatusOK, mods)
}

func (h *Handler) catalogue(w http.ResponseWriter, r *http.Request) {
	mods, err := h.service.Catalogue(r.Context())
	if err != nil {
		h.fail(w, "module catalogue", err)
		return
	}
	httpx.JSON(w, http.StatusOK, mods)
}

func (h *Handler) listSiteModules(w http.ResponseWriter, r *http.Request) {
	siteID, ok := h.pathID(w, r, "siteID")
	if !ok {
		return
	}
	enabledOnly, _ := strconv.ParseBool(r.URL.Query().Get("enabled"))
	rows, err := h.service.SiteModules(r.Context(), rbac.AccessFromContext(r.Context()), siteID, enabledOnly)
	if err != nil {
		h.fail(w, "list site modules", err)
		return
	}
	httpx.JSON(w, http.StatusOK, rows)
}

type setModulesRequest struct {
	ModuleIDs []string `json:"module_ids" validate:"dive,uuid"`
}

func (h *Handler) setSiteModules(w http.ResponseWriter, r *http.Request) {
	siteID, ok := h.pathID(w, r, "siteID")
	if !ok {
		return
	}
	var req setModulesRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondValidation(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondValidation(w, err)
		return
	}
	caller := rbac.AccessFromContext(r.Context())
	if err := h.service.SetModules(r.Context(), caller, siteID, req.ModuleIDs); err != nil {
		h.fail(w, "set site modules", err)
		return
	}
	rows, err := h.service.SiteModules(r.Context(), caller, siteID, false)
	if err != nil {
		h.fail(w, "list site modules", err)
		return
	}
	httpx.JSON(w, http.StatusOK, rows)
}

func (h *Handler) enableModule(w http.ResponseWriter, r *http.Request) {
	siteID, moduleID, ok := h.siteModuleIDs(w, r)
	if !ok {
		return
	}
	sm, err := h.service.Enable(r.Context(), rbac.AccessFromContext(r.Context()), siteID, moduleID)
	if err != nil {
		h.fail(w, "enable site module", err)
		return
	}
	httpx.JSON(w, http.StatusOK, sm)
}

func (h *Handler) disableModule(w http.ResponseWriter, r *http.Request) {
	siteID, moduleID, ok := h.siteModuleIDs(w, r)
	if !ok {
		return
	}
	sm, err := h.service.Disable(r.Context(), rbac.AccessFromContext(r.Context()), siteID, moduleID)
	if err != nil {
		h.fail(w, "disable site module", err)
		return
	}
	httpx.JSON(w, http.StatusOK, sm)
}

func (h *Handler) userPermissions(w http.ResponseWriter, r *http.Request) {
	userID, siteID, ok := h.userSiteIDs(w, r)
	if !ok {
		return
	}
	perms, err := h.service.UserPermissions(r.Context(), rbac.AccessFromContext(r.Context()), userID, siteID)
	if err != nil {
		h.fail(w, "user site permissions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, perms)
}

type setUserPermissionsRequest struct {
	Permissions []UserPermission `json:"permissions" validate:"dive"`
}

func (h *Handler) setUserPermissions(w http.ResponseWriter, r *http.Request) {
	userID, siteID, ok := h.userSiteIDs(w, r)
	if !ok {
		return
	}
	var req setUserPermissionsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondValidation(w, err)
		return
	}
	caller := rbac.AccessFromContext(r.Context())
	if err := h.service.SetUserPermissions(r.Context(), caller, userID, siteID, req.Permissions); err != nil {
		h.fail(w, "set user site permissions", err)
		return
	}
	perms, err := h.service.UserPermissions(r.Context(), caller, userID, siteID)
	if err != nil {
		h.fail(w, "user site permissions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, perms)
}

// pathID reads a uuid path parameter, answering 400 when it is malformed.
func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	id := chi.URLParam(r, name)
	if err := h.validator.Var(id, "required,uuid"); err != nil {
		httpx.RespondError(w, fmt.Errorf("%s %q: %w", name, id, httpx.ErrValidation))
		return "", false
	}
	return id, true
}

func (h *Handler) siteModuleIDs(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	siteID, ok := h.pathID(w, r, "siteID")
	if !ok {
		return "", "", false
	}
	moduleID, ok := h.pathID(w, r, "moduleID")
	return siteID, moduleID, ok
}

func (h *Handler) userSiteIDs(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	siteID, ok := h.pathID(w, r, "siteID")
	if !ok {
		return "", "", false
	}
	userID, ok := h.pathID(w, r, "userID")
	return userID, siteID, ok
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	h.logger.Error(op, slog.Any("error", err))
	httpx.RespondError(w, err)
}
