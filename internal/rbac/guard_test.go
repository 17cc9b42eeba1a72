package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecide(t *testing.T) {
	chef := Loaded(Flatten("u1", []Assignment{assign("Chef de Site", RoleTypeClient)}))
	admin := Loaded(Flatten("u2", []Assignment{assign("Super Admin", RoleTypeTeam)}))

	tests := []struct {
		name          string
		state         AccessState
		authenticated bool
		allowed       []string
		want          GuardOutcome
	}{
		{"slug matches display name", chef, true, []string{"chef-site"}, GuardGranted},
		{"display name matches itself", chef, true, []string{"Chef de Site"}, GuardGranted},
		{"other role denied", chef, true, []string{"super_admin"}, GuardDenied},
		{"no roles at all", Loaded(Flatten("u3", nil)), true, []string{"admin_global"}, GuardDenied},
		{"one of several allowed", admin, true, []string{"chef-site", "super_admin"}, GuardGranted},
		{"no roles required", chef, true, nil, GuardGranted},
		{"loading while signed in", Loading(), true, []string{"chef-site"}, GuardLoading},
		{"loading without roles required", Loading(), true, nil, GuardLoading},
		{"anonymous", Loading(), false, []string{"chef-site"}, GuardRedirectLogin},
		{"anonymous without roles required", chef, false, nil, GuardRedirectLogin},
		{"failed fetch behaves like no roles", FetchFailed("u1", assert.AnError), true, []string{"chef-site"}, GuardDenied},
		{"failed fetch still signed in", FetchFailed("u1", assert.AnError), true, nil, GuardGranted},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Decide(tc.state, tc.authenticated, tc.allowed))
		})
	}
}
