package models

import "time"

// RefreshToken is the persisted half of a refresh credential. Only the
// SHA-256 hash of the secret is stored. Revoked is terminal.
type RefreshToken struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	Revoked   bool
	CreatedAt time.Time
}

// Expired reports whether the token is past its lifetime at now. A token is
// already expired exactly at ExpiresAt.
func (t *RefreshToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
