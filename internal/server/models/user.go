// Package models holds the persistent records of the credential store.
package models

import "time"

// User is a board account. Username and Email are unique.
type User struct {
	ID              string
	Username        string
	Email           string
	DisplayName     string
	EmailVerified   bool
	EmailVerifiedAt *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Credential is the password credential of a user. It is replaced as a whole
// on password change or reset, never updated in place.
type Credential struct {
	UserID       string
	PasswordHash string
	Salt         string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
