package models

import (
	"time"

	"github.com/google/uuid"
)

type Account struct {
	ID            uuid.UUID  `json:"id"`
	Username      string     `json:"username"`
	DisplayName   string     `json:"display_name"`
	Email         string     `json:"email"`
	PasswordHash  string     `json:"-"`
	OAuthProvider string     `json:"oauth_provider,omitempty"`
	OAuthSubject  string     `json:"-"`
	Bio           string     `json:"bio,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	LastLoginAt   *time.Time `json:"last_login_at,omitempty"`
}

// HasPassword reports whether the password login path is available.
func (a *Account) HasPassword() bool {
	return a.PasswordHash != ""
}
