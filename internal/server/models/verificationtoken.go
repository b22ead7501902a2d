package models

import "time"

// VerificationToken is a single-use secret bound to one purpose
// (email verification or password reset).
type VerificationToken struct {
	ID        string
	UserID    string
	TokenHash string
	TokenType string
	ExpiresAt time.Time
	Used      bool
	CreatedAt time.Time
}

// Expired reports whether the token is past its lifetime at now.
func (t *VerificationToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
