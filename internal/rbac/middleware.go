package rbac

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/conformapro/conformapro/internal/platform/httpx"
	"github.com/conformapro/conformapro/internal/shared"
)

// Resolver produces the access state for a user.
type Resolver interface {
	Resolve(ctx context.Context, userID string) AccessState
}

// PermissionRecorder receives every permission decision made by the middleware.
type PermissionRecorder interface {
	ObservePermissionCheck(module, action string, allowed bool)
}

// Middleware wires RBAC authorization helpers for HTTP handlers.
type Middleware struct {
	Resolver Resolver
	Logger   *slog.Logger
	Recorder PermissionRecorder
}

// LoadAccess resolves the caller's access state once per request. Anonymous
// requests pass through untouched.
func (m Middleware) LoadAccess(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal := shared.PrincipalFromContext(r.Context())
		if principal == nil || m.Resolver == nil {
			next.ServeHTTP(w, r)
			return
		}
		state := m.Resolver.Resolve(r.Context(), principal.UserID)
		if state.Status == StatusFetchFailed && m.Logger != nil {
			m.Logger.Warn("rbac access degraded", slog.String("user_id", principal.UserID), slog.Any("error", state.Err))
		}
		next.ServeHTTP(w, r.WithContext(ContextWithAccess(r.Context(), state)))
	})
}

// RequireRoles gates a route on role names. No roles admits any authenticated caller.
func (m Middleware) RequireRoles(allowed ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authenticated := shared.PrincipalFromContext(r.Context()) != nil
			state := AccessFromContext(r.Context())
			switch Decide(state, authenticated, allowed) {
			case GuardGranted:
				next.ServeHTTP(w, r)
			case GuardLoading:
				writeLoading(w)
			case GuardRedirectLogin:
				writeLogin(w)
			default:
				writeDenied(w)
			}
		})
	}
}

// RequireSuperAdmin admits only holders of the Super Admin staff role.
func (m Middleware) RequireSuperAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if shared.PrincipalFromContext(r.Context()) == nil {
			writeLogin(w)
			return
		}
		state := AccessFromContext(r.Context())
		switch {
		case state.IsLoading():
			writeLoading(w)
		case state.IsSuperAdmin():
			next.ServeHTTP(w, r)
		default:
			writeDenied(w)
		}
	})
}

// RequirePermission ensures the caller holds an allow for (module, action).
func (m Middleware) RequirePermission(module, action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if shared.PrincipalFromContext(r.Context()) == nil {
				writeLogin(w)
				return
			}
			state := AccessFromContext(r.Context())
			if state.IsLoading() {
				writeLoading(w)
				return
			}
			allowed := state.HasPermission(module, action)
			if m.Recorder != nil {
				m.Recorder.ObservePermissionCheck(module, action, allowed)
			}
			if !allowed {
				if m.Logger != nil {
					m.Logger.Info("rbac permission denied",
						slog.String("user_id", state.Context.UserID),
						slog.String("module", module),
						slog.String("action", action))
				}
				writeDenied(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeLoading(w http.ResponseWriter) {
	w.Header().Set("Retry-After", "1")
	httpx.Problem(w, http.StatusServiceUnavailable, "Service Unavailable", "access is still being resolved")
}

func writeLogin(w http.ResponseWriter) {
	httpx.JSON(w, http.StatusUnauthorized, map[string]string{
		"error":    "authentication required",
		"redirect": "/login",
	})
}

func writeDenied(w http.ResponseWriter) {
	httpx.Problem(w, http.StatusForbidden, "Accès refusé", "Vous n'avez pas les droits nécessaires pour accéder à cette page.")
}
