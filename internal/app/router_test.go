package app

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conformapro/conformapro/internal/auth"
	"github.com/conformapro/conformapro/internal/observability"
	"github.com/conformapro/conformapro/internal/rbac"
	"github.com/conformapro/conformapro/jobs"
)

type rolesResolver map[string]string

func (r rolesResolver) Resolve(_ context.Context, userID string) rbac.AccessState {
	ac := rbac.AccessContext{UserID: userID, AllRoles: []rbac.Role{}, Permissions: []rbac.Permission{}}
	if name, ok := r[userID]; ok {
		role := rbac.Role{ID: "role-" + userID, Type: rbac.RoleTypeTeam, Name: name}
		ac.PrimaryRole = &role
		ac.AllRoles = append(ac.AllRoles, role)
	}
	return rbac.Loaded(ac)
}

func newTestRouter(t *testing.T) (http.Handler, *auth.TokenIssuer) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tokens := auth.NewTokenIssuer("router-secret-router-secret-router-secret", "conformapro", time.Hour)
	metrics := observability.NewMetrics()
	mw := rbac.Middleware{
		Resolver: rolesResolver{"admin": "Super Admin", "staff": "Admin Global"},
		Logger:   logger,
		Recorder: metrics,
	}
	cfg := &Config{AppEnv: "test", AppRequestTimeout: 5 * time.Second, RateLimitPerMinute: 1000}
	return NewRouter(RouterParams{
		Logger:         logger,
		Config:         cfg,
		Tokens:         tokens,
		RBACMiddleware: mw,
		Metrics:        metrics,
		AccessHandler:  rbac.NewHandler(logger, mw),
		JobHandler:     jobs.NewHandler(nil, logger),
	}), tokens
}

func bearer(t *testing.T, tokens *auth.TokenIssuer, userID string) string {
	t.Helper()
	raw, _, err := tokens.Issue(userID, userID+"@conformapro.test")
	require.NoError(t, err)
	return "Bearer " + raw
}

func TestRouterHealthAndSecurityHeaders(t *testing.T) {
	router, _ := newTestRouter(t)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
	assert.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "conformapro_http_requests_total")
}

func TestRouterAPIAuthentication(t *testing.T) {
	router, tokens := newTestRouter(t)

	cases := []struct {
		name   string
		path   string
		auth   string
		status int
	}{
		{"anonymous me", "/api/me", "", http.StatusUnauthorized},
		{"malformed header", "/api/me", "Token abc", http.StatusUnauthorized},
		{"invalid token", "/api/me", "Bearer not-a-token", http.StatusUnauthorized},
		{"authenticated me", "/api/me", bearer(t, tokens, "staff"), http.StatusOK},
		{"jobs denied to staff", "/api/jobs/health", bearer(t, tokens, "staff"), http.StatusForbidden},
		{"jobs for super admin", "/api/jobs/health", bearer(t, tokens, "admin"), http.StatusOK},
		{"unknown route", "/api/nope", bearer(t, tokens, "staff"), http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			if tc.auth != "" {
				req.Header.Set("Authorization", tc.auth)
			}
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)
			assert.Equal(t, tc.status, rr.Code, rr.Body.String())
		})
	}
}

func TestRouterAnonymousRedirectHint(t *testing.T) {
	router, _ := newTestRouter(t)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/me", nil))
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	var body map[string]any
	require.NoError(t, json.NewDecoder(strings.NewReader(rr.Body.String())).Decode(&body))
	assert.Equal(t, "/login", body["redirect"])
}
