package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/conformapro/conformapro/internal/auth"
	"github.com/conformapro/conformapro/internal/observability"
	"github.com/conformapro/conformapro/internal/platform/httpx"
	"github.com/conformapro/conformapro/internal/preferences"
	"github.com/conformapro/conformapro/internal/rbac"
	"github.com/conformapro/conformapro/internal/roles"
	"github.com/conformapro/conformapro/internal/sitemodules"
	"github.com/conformapro/conformapro/internal/users"
	"github.com/conformapro/conformapro/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	Tokens         *auth.TokenIssuer
	RBACMiddleware rbac.Middleware
	Metrics        *observability.Metrics

	AuthHandler        *auth.Handler
	AccessHandler      *rbac.Handler
	SiteModulesHandler *sitemodules.Handler
	PreferencesHandler *preferences.Handler
	UsersHandler       *users.Handler
	RolesHandler       *roles.Handler
	JobHandler         *jobs.Handler
}

// NewRouter constructs the chi.Router with the API defaults. Every /api route
// runs behind bearer authentication followed by access resolution.
func NewRouter(params RouterParams) http.Handler {
	logger := params.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}
	if !params.Config.IsProduction() {
		r.Use(chimw.Logger)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		if params.Tokens != nil {
			r.Use(auth.Authenticate(params.Tokens, logger))
		}
		r.Use(params.RBACMiddleware.LoadAccess)

		if params.AuthHandler != nil {
			r.Route("/auth", params.AuthHandler.MountRoutes)
		}
		if params.AccessHandler != nil {
			params.AccessHandler.MountRoutes(r)
		}
		if params.SiteModulesHandler != nil {
			params.SiteModulesHandler.MountRoutes(r)
		}
		if params.PreferencesHandler != nil {
			r.Group(func(r chi.Router) {
				r.Use(params.RBACMiddleware.RequireRoles())
				params.PreferencesHandler.MountRoutes(r)
			})
		}
		if params.UsersHandler != nil {
			r.Route("/users", params.UsersHandler.MountRoutes)
		}
		if params.RolesHandler != nil {
			r.Route("/roles", params.RolesHandler.MountRoutes)
		}
		if params.JobHandler != nil {
			r.Route("/jobs", func(r chi.Router) {
				r.Use(params.RBACMiddleware.RequireSuperAdmin)
				params.JobHandler.MountRoutes(r)
			})
		}
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.RespondError(w, httpx.ErrNotFound)
	})

	return r
}
