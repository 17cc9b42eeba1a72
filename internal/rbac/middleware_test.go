package rbac

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conformapro/conformapro/internal/shared"
)

type fixedResolver struct {
	state AccessState
	calls int
}

func (f *fixedResolver) Resolve(ctx context.Context, userID string) AccessState {
	f.calls++
	return f.state
}

type countingRecorder struct {
	allowed, denied int
}

func (c *countingRecorder) ObservePermissionCheck(module, action string, allowed bool) {
	if allowed {
		c.allowed++
		return
	}
	c.denied++
}

func withPrincipal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := r.Header.Get("X-Test-User"); id != "" {
			r = r.WithContext(shared.ContextWithPrincipal(r.Context(), &shared.Principal{UserID: id, Email: id + "@example.com"}))
		}
		next.ServeHTTP(w, r)
	})
}

func newGuardedRouter(mw Middleware) http.Handler {
	ok := func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) }
	r := chi.NewRouter()
	r.Use(withPrincipal, mw.LoadAccess)
	r.With(mw.RequireRoles("chef-site")).Get("/site", ok)
	r.With(mw.RequirePermission("incidents", "view")).Get("/incidents", ok)
	r.With(mw.RequirePermission("incidents", "delete")).Delete("/incidents", ok)
	r.With(mw.RequireSuperAdmin).Get("/admin", ok)
	NewHandler(nil, mw).MountRoutes(r)
	return r
}

func serve(h http.Handler, method, path, user string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if user != "" {
		req.Header.Set("X-Test-User", user)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestRequireRolesHTTP(t *testing.T) {
	chef := Loaded(Flatten("u1", []Assignment{assign("Chef de Site", RoleTypeClient, allow("incidents", "view"))}))
	other := Loaded(Flatten("u1", []Assignment{assign("Auditeur", RoleTypeClient)}))

	rr := serve(newGuardedRouter(Middleware{Resolver: &fixedResolver{state: chef}}), http.MethodGet, "/site", "u1")
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = serve(newGuardedRouter(Middleware{Resolver: &fixedResolver{state: other}}), http.MethodGet, "/site", "u1")
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Contains(t, rr.Body.String(), "Accès refusé")

	rr = serve(newGuardedRouter(Middleware{Resolver: &fixedResolver{state: chef}}), http.MethodGet, "/site", "")
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	var body map[string]string
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.Equal(t, "/login", body["redirect"])
}

func TestRequireRolesWhileLoading(t *testing.T) {
	rr := serve(newGuardedRouter(Middleware{}), http.MethodGet, "/site", "u1")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "1", rr.Header().Get("Retry-After"))

	// Anonymous requests never resolve access, so their state stays at the
	// zero value and must still be sent to login.
	rr = serve(newGuardedRouter(Middleware{}), http.MethodGet, "/site", "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRequireSuperAdminHTTP(t *testing.T) {
	cases := []struct {
		name   string
		state  AccessState
		user   string
		status int
	}{
		{"staff super admin", Loaded(Flatten("u1", []Assignment{assign("Super Admin", RoleTypeTeam)})), "u1", http.StatusNoContent},
		{"client role named like super admin", Loaded(Flatten("u1", []Assignment{assign("super-admin", RoleTypeClient)})), "u1", http.StatusForbidden},
		{"other staff role", Loaded(Flatten("u1", []Assignment{assign("Admin Global", RoleTypeTeam)})), "u1", http.StatusForbidden},
		{"failed fetch", FetchFailed("u1", assert.AnError), "u1", http.StatusForbidden},
		{"loading", Loading(), "u1", http.StatusServiceUnavailable},
		{"anonymous", Loading(), "", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := serve(newGuardedRouter(Middleware{Resolver: &fixedResolver{state: tc.state}}), http.MethodGet, "/admin", tc.user)
			assert.Equal(t, tc.status, rr.Code)
		})
	}
}

func TestRequirePermissionHTTP(t *testing.T) {
	state := Loaded(Flatten("u1", []Assignment{assign("Chef de Site", RoleTypeClient, allow("INCIDENTS", "view"))}))
	recorder := &countingRecorder{}
	resolver := &fixedResolver{state: state}
	h := newGuardedRouter(Middleware{Resolver: resolver, Recorder: recorder})

	assert.Equal(t, http.StatusNoContent, serve(h, http.MethodGet, "/incidents", "u1").Code)
	assert.Equal(t, http.StatusForbidden, serve(h, http.MethodDelete, "/incidents", "u1").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(h, http.MethodGet, "/incidents", "").Code)
	assert.Equal(t, 1, recorder.allowed)
	assert.Equal(t, 1, recorder.denied)
	assert.Equal(t, 2, resolver.calls)
}

func TestRequirePermissionAfterFailedFetch(t *testing.T) {
	h := newGuardedRouter(Middleware{Resolver: &fixedResolver{state: FetchFailed("u1", assert.AnError)}})
	assert.Equal(t, http.StatusForbidden, serve(h, http.MethodGet, "/incidents", "u1").Code)
}

func TestMeEndpoint(t *testing.T) {
	state := Loaded(Flatten("u1", []Assignment{
		assign("Super Admin", RoleTypeTeam, allow("roles", "view")),
		assign("Chef de Site", RoleTypeClient, allow("incidents", "view")),
	}))
	h := newGuardedRouter(Middleware{Resolver: &fixedResolver{state: state}})

	rr := serve(h, http.MethodGet, "/me", "u1")
	require.Equal(t, http.StatusOK, rr.Code)

	var body meResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.Equal(t, "u1@example.com", body.Email)
	assert.Equal(t, "loaded", body.Status)
	require.NotNil(t, body.PrimaryRole)
	assert.Equal(t, "Super Admin", body.PrimaryRole.Name)
	assert.Len(t, body.AllRoles, 2)
	assert.True(t, body.IsSuperAdmin)
	assert.True(t, body.IsTeamUser)
	assert.False(t, body.IsClientUser)
	assert.Equal(t, []string{"roles", "incidents"}, body.Modules)
}

func TestTemplateEndpoints(t *testing.T) {
	state := Loaded(Flatten("u1", []Assignment{assign("Super Admin", RoleTypeTeam, allow("roles", "view"))}))
	h := newGuardedRouter(Middleware{Resolver: &fixedResolver{state: state}})

	rr := serve(h, http.MethodGet, "/permission-templates", "u1")
	require.Equal(t, http.StatusOK, rr.Code)
	var list []Template
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&list))
	assert.Len(t, list, len(Templates()))

	assert.Equal(t, http.StatusOK, serve(h, http.MethodGet, "/permission-templates/viewer", "u1").Code)
	assert.Equal(t, http.StatusNotFound, serve(h, http.MethodGet, "/permission-templates/nope", "u1").Code)
}
