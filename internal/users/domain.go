package users

import "time"

// User represents a provisioned account.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Nom       string    `json:"nom,omitempty"`
	Prenom    string    `json:"prenom,omitempty"`
	Telephone string    `json:"telephone,omitempty"`
	TenantID  string    `json:"tenant_id,omitempty"`
	IsActive  bool      `json:"is_active"`
	Roles     []string  `json:"roles"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CreateInput carries the fields accepted when provisioning a user.
type CreateInput struct {
	Email     string   `json:"email" validate:"required,email,max=254"`
	Password  string   `json:"password" validate:"required,min=8,max=72"`
	Nom       string   `json:"nom" validate:"max=120"`
	Prenom    string   `json:"prenom" validate:"max=120"`
	Telephone string   `json:"telephone" validate:"max=40"`
	RoleID    string   `json:"role_id" validate:"required,uuid"`
	ClientID  string   `json:"client_id" validate:"omitempty,uuid"`
	SiteScope []string `json:"site_scope" validate:"dive,uuid"`
}

// NewUser is the row written by InsertUser.
type NewUser struct {
	Email        string
	PasswordHash string
	Nom          string
	Prenom       string
	Telephone    string
	TenantID     string
}

// UpdateInput carries the profile fields an administrator may change. Nil
// fields are left untouched.
type UpdateInput struct {
	Nom       *string `json:"nom" validate:"omitempty,max=120"`
	Prenom    *string `json:"prenom" validate:"omitempty,max=120"`
	Telephone *string `json:"telephone" validate:"omitempty,max=40"`
	IsActive  *bool   `json:"is_active"`
}

// Empty reports whether no field is set.
func (in UpdateInput) Empty() bool {
	return in.Nom == nil && in.Prenom == nil && in.Telephone == nil && in.IsActive == nil
}
