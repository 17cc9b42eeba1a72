package rbac

import (
	"strings"

	"github.com/conformapro/conformapro/internal/shared"
)

// AccessContext is the flattened view of a user's role assignments.
type AccessContext struct {
	UserID   string `json:"user_id"`
	TenantID string `json:"tenant_id,omitempty"`
	// PrimaryRole is the first assignment and is only meant for display.
	PrimaryRole *Role        `json:"primary_role,omitempty"`
	AllRoles    []Role       `json:"all_roles"`
	Permissions []Permission `json:"permissions"`
}

// Flatten unions every assigned role's permissions without deduplication,
// preserving assignment order then permission order.
func Flatten(userID string, assignments []Assignment) AccessContext {
	ac := AccessContext{
		UserID:      userID,
		AllRoles:    make([]Role, 0, len(assignments)),
		Permissions: []Permission{},
	}
	for _, a := range assignments {
		role := a.Role
		ac.Permissions = append(ac.Permissions, role.Permissions...)
		role.Permissions = nil
		ac.AllRoles = append(ac.AllRoles, role)
	}
	if len(ac.AllRoles) > 0 {
		primary := ac.AllRoles[0]
		ac.PrimaryRole = &primary
	}
	return ac
}

// HasPermission reports whether any role grants an allow for (module, action).
// Deny and inherit entries are not consulted: an allow anywhere wins.
func (ac AccessContext) HasPermission(module, action string) bool {
	for _, p := range ac.Permissions {
		if p.Decision != DecisionAllow {
			continue
		}
		if strings.EqualFold(p.Module, module) && strings.EqualFold(p.Action, action) {
			return true
		}
	}
	return false
}

// hasRole matches name against assigned roles exactly or by slug.
func (ac AccessContext) hasRole(name string) bool {
	slug := Slugify(name)
	for _, r := range ac.AllRoles {
		if r.Name == name {
			return true
		}
		if slug != "" && Slugify(r.Name) == slug {
			return true
		}
	}
	return false
}

// RoleNames returns the display names of all assigned roles.
func (ac AccessContext) RoleNames() []string {
	names := make([]string, 0, len(ac.AllRoles))
	for _, r := range ac.AllRoles {
		names = append(names, r.Name)
	}
	return names
}

// IsTeamUser reports whether any assigned role is a staff role.
func (ac AccessContext) IsTeamUser() bool {
	for _, r := range ac.AllRoles {
		if r.Type == RoleTypeTeam {
			return true
		}
	}
	return false
}

// IsClientUser reports whether the user holds client roles only.
func (ac AccessContext) IsClientUser() bool {
	if ac.IsTeamUser() {
		return false
	}
	for _, r := range ac.AllRoles {
		if r.Type == RoleTypeClient {
			return true
		}
	}
	return false
}

// IsSuperAdmin reports whether the user holds the Super Admin staff role.
// Client roles never qualify, whatever their name.
func (ac AccessContext) IsSuperAdmin() bool {
	slug := Slugify(shared.RoleSuperAdmin)
	for _, r := range ac.AllRoles {
		if r.Type != RoleTypeTeam {
			continue
		}
		if r.Name == shared.RoleSuperAdmin || Slugify(r.Name) == slug {
			return true
		}
	}
	return false
}

// ViewableModules returns module codes carrying a view/allow entry, in first-seen order.
func (ac AccessContext) ViewableModules() []string {
	seen := make(map[string]struct{})
	var codes []string
	for _, p := range ac.Permissions {
		if p.Decision != DecisionAllow || !strings.EqualFold(p.Action, shared.ActionView) {
			continue
		}
		code := strings.ToLower(p.Module)
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}
	return codes
}
