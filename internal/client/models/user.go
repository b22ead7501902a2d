// Package models defines client-side data models used by the wadai CLI.
package models

import "time"

// User is the profile returned by the server.
type User struct {
	ID            string     `json:"id"`
	Username      string     `json:"username"`
	Email         string     `json:"email"`
	DisplayName   string     `json:"display_name,omitempty"`
	EmailVerified bool       `json:"email_verified"`
	VerifiedAt    *time.Time `json:"email_verified_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// TokenPair is a short-lived access token plus the refresh secret that
// rotates it.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// Empty reports whether the pair carries no credentials.
func (p *TokenPair) Empty() bool {
	return p == nil || (p.AccessToken == "" && p.RefreshToken == "")
}
