package rbac

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/conformapro/conformapro/internal/platform/httpx"
	"github.com/conformapro/conformapro/internal/shared"
)

// Handler exposes the caller's resolved access and the permission templates.
type Handler struct {
	logger *slog.Logger
	rbac   Middleware
}

// NewHandler builds the access handler.
func NewHandler(logger *slog.Logger, rbac Middleware) *Handler {
	return &Handler{logger: logger, rbac: rbac}
}

// MountRoutes registers access routes. The router must already run LoadAccess.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.rbac.RequireRoles()).Get("/me", h.me)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequirePermission(shared.ModuleRoles, shared.ActionView))
		r.Get("/permission-templates", h.listTemplates)
		r.Get("/permission-templates/{id}", h.getTemplate)
	})
}

type meResponse struct {
	UserID       string       `json:"user_id"`
	Email        string       `json:"email"`
	TenantID     string       `json:"tenant_id,omitempty"`
	Status       string       `json:"status"`
	PrimaryRole  *Role        `json:"primary_role"`
	AllRoles     []Role       `json:"all_roles"`
	Permissions  []Permission `json:"permissions"`
	Modules      []string     `json:"modules"`
	IsTeamUser   bool         `json:"is_team_user"`
	IsClientUser bool         `json:"is_client_user"`
	IsSuperAdmin bool         `json:"is_super_admin"`
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	principal := shared.PrincipalFromContext(r.Context())
	state := AccessFromContext(r.Context())
	resp := meResponse{
		UserID:       principal.UserID,
		Email:        principal.Email,
		TenantID:     state.Context.TenantID,
		Status:       state.Status.String(),
		PrimaryRole:  state.Context.PrimaryRole,
		AllRoles:     state.Context.AllRoles,
		Permissions:  state.Context.Permissions,
		Modules:      state.Context.ViewableModules(),
		IsTeamUser:   state.IsTeamUser(),
		IsClientUser: state.IsClientUser(),
		IsSuperAdmin: state.IsSuperAdmin(),
	}
	if resp.AllRoles == nil {
		resp.AllRoles = []Role{}
	}
	if resp.Permissions == nil {
		resp.Permissions = []Permission{}
	}
	if resp.Modules == nil {
		resp.Modules = []string{}
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) listTemplates(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, Templates())
}

func (h *Handler) getTemplate(w http.ResponseWriter, r *http.Request) {
	t, ok := TemplateByID(chi.URLParam(r, "id"))
	if !ok {
		httpx.RespondError(w, httpx.ErrNotFound)
		return
	}
	httpx.JSON(w, http.StatusOK, t)
}
