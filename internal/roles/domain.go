package roles

import (
	"time"

	"github.com/conformapro/conformapro/internal/rbac"
)

// Summary is a role as shown in the administration list.
type Summary struct {
	rbac.Role
	UserCount int `json:"user_count"`
}

// GetID identifies the summary inside list caches.
func (s Summary) GetID() string { return s.ID }

// CreateInput carries the fields of a new role.
type CreateInput struct {
	Type        rbac.RoleType `json:"type" validate:"required,oneof=team client"`
	Name        string        `json:"name" validate:"required,max=120"`
	Description string        `json:"description" validate:"max=500"`
	TenantID    string        `json:"tenant_id" validate:"omitempty,uuid"`
}

// UpdateInput patches a role. Type may be echoed back but never changed.
type UpdateInput struct {
	Type        *rbac.RoleType `json:"type,omitempty"`
	Name        *string        `json:"name,omitempty" validate:"omitempty,min=1,max=120"`
	Description *string        `json:"description,omitempty" validate:"omitempty,max=500"`
}

// PermissionInput is one entry of a permission replacement.
type PermissionInput struct {
	Module   string        `json:"module" validate:"required"`
	Action   string        `json:"action" validate:"required"`
	Decision rbac.Decision `json:"decision" validate:"required,oneof=allow deny inherit"`
	Scope    rbac.Scope    `json:"scope" validate:"omitempty,oneof=global tenant site"`
}

// AssignInput attaches users to a role.
type AssignInput struct {
	UserIDs   []string `json:"user_ids" validate:"required,min=1,dive,uuid"`
	ClientID  string   `json:"client_id" validate:"omitempty,uuid"`
	SiteScope []string `json:"site_scope" validate:"dive,uuid"`
}

// Member is a user assigned to a role.
type Member struct {
	AssignmentID string    `json:"id"`
	UserID       string    `json:"user_id"`
	Email        string    `json:"email"`
	Nom          string    `json:"nom,omitempty"`
	Prenom       string    `json:"prenom,omitempty"`
	ClientID     string    `json:"client_id,omitempty"`
	SiteScope    []string  `json:"site_scope"`
	AssignedAt   time.Time `json:"created_at"`
}
