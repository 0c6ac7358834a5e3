package models

import (
	"time"

	"github.com/google/uuid"
)

// APIKey is a stored credential. The plaintext token is never persisted;
// only its SHA-256 digest and the first 8 characters are kept.
type APIKey struct {
	ID         uuid.UUID  `json:"id"`
	AccountID  uuid.UUID  `json:"account_id"`
	KeyHash    string     `json:"-"`
	KeyPrefix  string     `json:"key_prefix"`
	Label      string     `json:"label,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

// Usable reports whether the key has not expired at now.
func (k *APIKey) Usable(now time.Time) bool {
	return k.ExpiresAt == nil || k.ExpiresAt.After(now)
}

// Principal is an authenticated caller: the account and the key it used.
type Principal struct {
	Account *Account
	Key     *APIKey
}
