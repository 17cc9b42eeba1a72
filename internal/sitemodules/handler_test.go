package sitemodules

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conformapro/conformapro/internal/rbac"
	"github.com/conformapro/conformapro/internal/shared"
)

const (
	ownSite     = "0b6f6b8e-1111-4c1d-9a55-000000000001"
	foreignSite = "0b6f6b8e-1111-4c1d-9a55-000000000002"
	ownUser     = "0b6f6b8e-2222-4c1d-9a55-000000000001"
	foreignUser = "0b6f6b8e-2222-4c1d-9a55-000000000002"
	epiModule   = "0b6f6b8e-3333-4c1d-9a55-000000000001"
)

type fixedResolver rbac.AccessState

func (f fixedResolver) Resolve(context.Context, string) rbac.AccessState {
	return rbac.AccessState(f)
}

func clientAdmin() rbac.AccessState {
	perms := []rbac.Permission{}
	for _, p := range []struct{ module, action string }{
		{shared.ModuleSites, shared.ActionView},
		{shared.ModuleSites, shared.ActionEdit},
		{shared.ModuleUtilisateurs, shared.ActionView},
		{shared.ModuleUtilisateurs, shared.ActionEdit},
	} {
		perms = append(perms, rbac.Permission{Module: p.module, Action: p.action, Decision: rbac.DecisionAllow, Scope: rbac.ScopeTenant})
	}
	return access(ownUser, "client-1", rbac.RoleTypeClient, "Admin Client", perms...)
}

func newHandlerRepository() *mockRepository {
	repo := newMockRepository()
	repo.siteClient[ownSite] = "client-1"
	repo.siteClient[foreignSite] = "client-2"
	repo.userClient[ownUser] = "client-1"
	repo.userClient[foreignUser] = "client-2"
	repo.siteModules[foreignSite] = []SiteModule{{SiteID: foreignSite, ModuleID: epiModule, Enabled: true}}
	return repo
}

func newTestRouter(repo *mockRepository, state rbac.AccessState) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mw := rbac.Middleware{Resolver: fixedResolver(state)}
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := shared.ContextWithPrincipal(r.Context(), &shared.Principal{UserID: state.Context.UserID})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}, mw.LoadAccess)
	NewHandler(logger, NewService(repo, nil, logger), mw).MountRoutes(r)
	return r
}

func send(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHandlerRejectsForeignTenant(t *testing.T) {
	grant := `{"permissions":[{"module":"epi","action":"view","decision":"allow"}]}`
	cases := []struct {
		name   string
		method string
		path   string
		body   string
	}{
		{"list foreign site modules", http.MethodGet, "/sites/" + foreignSite + "/modules", ""},
		{"replace foreign site modules", http.MethodPut, "/sites/" + foreignSite + "/modules", `{"module_ids":[]}`},
		{"enable on foreign site", http.MethodPut, "/sites/" + foreignSite + "/modules/" + epiModule, ""},
		{"disable on foreign site", http.MethodDelete, "/sites/" + foreignSite + "/modules/" + epiModule, ""},
		{"read grants on foreign site", http.MethodGet, "/sites/" + foreignSite + "/users/" + foreignUser + "/permissions", ""},
		{"write grants on foreign site", http.MethodPut, "/sites/" + foreignSite + "/users/" + foreignUser + "/permissions", grant},
		{"write grants of foreign user", http.MethodPut, "/sites/" + ownSite + "/users/" + foreignUser + "/permissions", grant},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := newHandlerRepository()
			rr := send(newTestRouter(repo, clientAdmin()), tc.method, tc.path, tc.body)
			assert.Equal(t, http.StatusForbidden, rr.Code, rr.Body.String())
			assert.Nil(t, repo.replaced)
			assert.Nil(t, repo.setIDs)
			assert.True(t, repo.siteModules[foreignSite][0].Enabled)
		})
	}
}

func TestHandlerOwnTenant(t *testing.T) {
	repo := newHandlerRepository()
	router := newTestRouter(repo, clientAdmin())

	rr := send(router, http.MethodPut, "/sites/"+ownSite+"/users/"+ownUser+"/permissions",
		`{"permissions":[{"module":"epi","action":"view","decision":"allow"}]}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Len(t, repo.replaced, 1)
	assert.Equal(t, "epi", repo.replaced[0].Module)

	rr = send(router, http.MethodGet, "/sites/"+ownSite+"/modules", "")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestHandlerMalformedIDs(t *testing.T) {
	paths := []struct{ method, path string }{
		{http.MethodGet, "/sites/not-a-uuid/modules"},
		{http.MethodPut, "/sites/" + ownSite + "/modules/42"},
		{http.MethodDelete, "/sites/" + ownSite + "/modules/42"},
		{http.MethodGet, "/sites/" + ownSite + "/users/nobody/permissions"},
	}
	staffState := access(ownUser, "", rbac.RoleTypeTeam, "Admin Global",
		rbac.Permission{Module: shared.ModuleSites, Action: shared.ActionView, Decision: rbac.DecisionAllow},
		rbac.Permission{Module: shared.ModuleSites, Action: shared.ActionEdit, Decision: rbac.DecisionAllow},
		rbac.Permission{Module: shared.ModuleUtilisateurs, Action: shared.ActionView, Decision: rbac.DecisionAllow},
	)
	router := newTestRouter(newHandlerRepository(), staffState)
	for _, p := range paths {
		rr := send(router, p.method, p.path, "")
		assert.Equal(t, http.StatusBadRequest, rr.Code, p.path)
	}
}
