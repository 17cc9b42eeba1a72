package rbac

import (
	"strings"

	"github.com/conformapro/conformapro/internal/shared"
)

// Template is a named, reusable permission set.
type Template struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Permissions []Permission `json:"permissions"`
}

func siteAllows(module string, actions ...string) []Permission {
	out := make([]Permission, 0, len(actions))
	for _, a := range actions {
		out = append(out, Permission{Module: module, Action: a, Decision: DecisionAllow, Scope: ScopeSite})
	}
	return out
}

func concat(groups ...[]Permission) []Permission {
	var out []Permission
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

const (
	view   = shared.ActionView
	create = shared.ActionCreate
	edit   = shared.ActionEdit
	del    = shared.ActionDelete
	export = shared.ActionExport
)

var templates = []Template{
	{
		ID:          "admin",
		Name:        "Administrator",
		Description: "Full access to all modules and actions",
		Permissions: concat(
			siteAllows(shared.ModuleIncidents, view, create, edit, del, export),
			siteAllows(shared.ModuleEquipements, view, create, edit, del),
			siteAllows(shared.ModuleFormations, view, create, edit, del),
			siteAllows(shared.ModuleEPI, view, create, edit, del),
			siteAllows(shared.ModuleEnvironnement, view, create, edit),
		),
	},
	{
		ID:          "manager",
		Name:        "Manager",
		Description: "Can view and manage most modules, limited delete access",
		Permissions: concat(
			siteAllows(shared.ModuleIncidents, view, create, edit, export),
			siteAllows(shared.ModuleEquipements, view, create, edit),
			siteAllows(shared.ModuleFormations, view, create, edit),
			siteAllows(shared.ModuleEPI, view, create, edit),
			siteAllows(shared.ModuleEnvironnement, view, create),
		),
	},
	{
		ID:          "viewer",
		Name:        "Viewer",
		Description: "Read-only access to all modules",
		Permissions: concat(
			siteAllows(shared.ModuleIncidents, view),
			siteAllows(shared.ModuleEquipements, view),
			siteAllows(shared.ModuleFormations, view),
			siteAllows(shared.ModuleEPI, view),
			siteAllows(shared.ModuleEnvironnement, view),
			siteAllows(shared.ModuleVisitesMedicales, view),
			siteAllows(shared.ModuleControles, view),
		),
	},
	{
		ID:          "safety_officer",
		Name:        "Safety Officer",
		Description: "Full access to safety modules (Incidents, EPI, Formations)",
		Permissions: concat(
			siteAllows(shared.ModuleIncidents, view, create, edit, del, export),
			siteAllows(shared.ModuleEPI, view, create, edit, del),
			siteAllows(shared.ModuleFormations, view, create, edit, del),
			siteAllows(shared.ModuleVisitesMedicales, view, create, edit),
			siteAllows(shared.ModuleEquipements, view),
			siteAllows(shared.ModuleEnvironnement, view),
		),
	},
	{
		ID:          "maintenance_tech",
		Name:        "Maintenance Technician",
		Description: "Full access to equipment and controls modules",
		Permissions: concat(
			siteAllows(shared.ModuleEquipements, view, create, edit, del),
			siteAllows(shared.ModuleControles, view, create, edit),
			siteAllows(shared.ModuleIncidents, view, create),
		),
	},
	{
		ID:          "environmental_officer",
		Name:        "Environment Manager",
		Description: "Full access to environmental management",
		Permissions: concat(
			siteAllows(shared.ModuleEnvironnement, view, create, edit, del, export),
			siteAllows(shared.ModuleEquipements, view),
			siteAllows(shared.ModuleIncidents, view),
		),
	},
	{
		ID:          "hr_manager",
		Name:        "HR Manager",
		Description: "Access to personnel-related modules",
		Permissions: concat(
			siteAllows(shared.ModuleFormations, view, create, edit, del),
			siteAllows(shared.ModuleVisitesMedicales, view, create, edit),
			siteAllows(shared.ModuleEPI, view, create),
			siteAllows(shared.ModuleIncidents, view),
		),
	},
}

// Templates returns a copy of the built-in templates.
func Templates() []Template {
	out := make([]Template, len(templates))
	for i, t := range templates {
		t.Permissions = append([]Permission(nil), t.Permissions...)
		out[i] = t
	}
	return out
}

// TemplateByID looks a template up by its identifier.
func TemplateByID(id string) (Template, bool) {
	for _, t := range templates {
		if t.ID == id {
			t.Permissions = append([]Permission(nil), t.Permissions...)
			return t, true
		}
	}
	return Template{}, false
}

// ApplyTemplate returns the template's permissions restricted to enabled
// modules. A nil enabled list keeps every permission.
func ApplyTemplate(id string, enabled []string) []Permission {
	t, ok := TemplateByID(id)
	if !ok {
		return nil
	}
	if enabled == nil {
		return t.Permissions
	}
	set := make(map[string]struct{}, len(enabled))
	for _, code := range enabled {
		set[strings.ToLower(code)] = struct{}{}
	}
	out := make([]Permission, 0, len(t.Permissions))
	for _, p := range t.Permissions {
		if _, ok := set[strings.ToLower(p.Module)]; ok {
			out = append(out, p)
		}
	}
	return out
}

// MergeTemplates combines several templates keyed by (module, action); an
// allow always replaces an earlier entry.
func MergeTemplates(ids ...string) []Permission {
	index := make(map[string]int)
	var out []Permission
	for _, id := range ids {
		t, ok := TemplateByID(id)
		if !ok {
			continue
		}
		for _, p := range t.Permissions {
			key := strings.ToLower(p.Module) + ":" + strings.ToLower(p.Action)
			if i, seen := index[key]; seen {
				if p.Decision == DecisionAllow {
					out[i] = p
				}
				continue
			}
			index[key] = len(out)
			out = append(out, p)
		}
	}
	return out
}
