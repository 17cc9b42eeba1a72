package sitemodules

import (
	"sort"
	"strings"
	"time"

	"github.com/conformapro/conformapro/internal/rbac"
)

// Module is an entry of the system module catalogue.
type Module struct {
	ID          string `json:"id"`
	Code        string `json:"code"`
	Libelle     string `json:"libelle"`
	Description string `json:"description,omitempty"`
	Actif       bool   `json:"actif"`
}

// SiteModule records whether a module is enabled for a site.
type SiteModule struct {
	SiteID     string     `json:"site_id"`
	ModuleID   string     `json:"module_id"`
	Enabled    bool       `json:"enabled"`
	EnabledAt  *time.Time `json:"enabled_at,omitempty"`
	DisabledAt *time.Time `json:"disabled_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	Module     Module     `json:"module"`
}

// UserPermission is a per-user grant attached to one site.
type UserPermission struct {
	ID       string        `json:"id,omitempty"`
	UserID   string        `json:"user_id"`
	ClientID string        `json:"client_id,omitempty"`
	SiteID   string        `json:"site_id"`
	Module   string        `json:"module"`
	Action   string        `json:"action"`
	Decision rbac.Decision `json:"decision"`
	Scope    rbac.Scope    `json:"scope"`
}

// SitePermissions is the set of grants a user holds at one site.
type SitePermissions []UserPermission

// HasPermission reports an allow for (module, action), compared case-insensitively.
func (p SitePermissions) HasPermission(module, action string) bool {
	for _, perm := range p {
		if perm.Decision == rbac.DecisionAllow &&
			strings.EqualFold(perm.Module, module) &&
			strings.EqualFold(perm.Action, action) {
			return true
		}
	}
	return false
}

// ViewCodes returns lower-cased module codes carrying a view/allow grant.
func (p SitePermissions) ViewCodes() []string {
	var codes []string
	for _, perm := range p {
		if perm.Decision == rbac.DecisionAllow && strings.EqualFold(perm.Action, "view") {
			codes = append(codes, strings.ToLower(perm.Module))
		}
	}
	return codes
}

// VisibleModules intersects the modules enabled for a site with the module
// codes the user may view. The result is deduplicated and sorted by label.
func VisibleModules(enabled []Module, viewAllowed []string) []Module {
	allowed := make(map[string]struct{}, len(viewAllowed))
	for _, code := range viewAllowed {
		allowed[strings.ToLower(code)] = struct{}{}
	}
	seen := make(map[string]struct{}, len(enabled))
	out := make([]Module, 0, len(enabled))
	for _, m := range enabled {
		if _, ok := allowed[strings.ToLower(m.Code)]; !ok {
			continue
		}
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}
		out = append(out, m)
	}
	sortByLabel(out)
	return out
}

func sortByLabel(mods []Module) {
	sort.SliceStable(mods, func(i, j int) bool {
		return strings.ToLower(mods[i].Libelle) < strings.ToLower(mods[j].Libelle)
	})
}
