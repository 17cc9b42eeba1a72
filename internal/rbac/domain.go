package rbac

import "time"

// RoleType separates internal staff roles from client-organisation roles.
type RoleType string

const (
	RoleTypeTeam   RoleType = "team"
	RoleTypeClient RoleType = "client"
)

// Valid reports whether t is a known role type.
func (t RoleType) Valid() bool {
	return t == RoleTypeTeam || t == RoleTypeClient
}

// Decision is the verdict attached to a (module, action, scope) triple.
type Decision string

const (
	DecisionAllow   Decision = "allow"
	DecisionDeny    Decision = "deny"
	DecisionInherit Decision = "inherit"
)

// Valid reports whether d is a known decision.
func (d Decision) Valid() bool {
	return d == DecisionAllow || d == DecisionDeny || d == DecisionInherit
}

// Scope is the breadth at which a decision applies.
type Scope string

const (
	ScopeGlobal Scope = "global"
	ScopeTenant Scope = "tenant"
	ScopeSite   Scope = "site"
)

// Valid reports whether s is a known scope.
func (s Scope) Valid() bool {
	return s == ScopeGlobal || s == ScopeTenant || s == ScopeSite
}

// Role represents a named permission grouping.
type Role struct {
	ID          string       `json:"id"`
	Type        RoleType     `json:"type"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	IsSystem    bool         `json:"is_system"`
	TenantID    string       `json:"tenant_id,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
	ArchivedAt  *time.Time   `json:"archived_at,omitempty"`
	Permissions []Permission `json:"permissions,omitempty"`
}

// Permission is one decision held by a role.
type Permission struct {
	ID       string   `json:"id,omitempty"`
	RoleID   string   `json:"role_id,omitempty"`
	Module   string   `json:"module"`
	Action   string   `json:"action"`
	Decision Decision `json:"decision"`
	Scope    Scope    `json:"scope"`
}

// Assignment links a user to a role, optionally scoped to a client and sites.
type Assignment struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Role      Role      `json:"role"`
	ClientID  string    `json:"client_id,omitempty"`
	SiteScope []string  `json:"site_scope,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
