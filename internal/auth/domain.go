package auth

import (
	"errors"
	"time"
)

var (
	// ErrInvalidCredentials is returned for unknown emails, inactive accounts
	// and wrong passwords alike.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidToken occurs when a bearer token cannot be verified.
	ErrInvalidToken = errors.New("invalid token")
)

// User represents an authenticated user account.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// LoginResult is returned to the client after a successful login.
type LoginResult struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
	UserID      string    `json:"user_id"`
}
