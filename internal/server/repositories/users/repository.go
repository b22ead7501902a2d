// Package users declares the credential store: user accounts and their
// password credentials.
package users

import (
	"context"
	"time"

	"github.com/dmitrijs2005/wadai/internal/server/models"
)

// Repository persists users and credentials.
//
// Lookups return common.ErrorNotFound when nothing matches. Create returns
// common.ErrUsernameOrEmailTaken when the username or email is in use.
type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)

	// MarkEmailVerified flips email_verified for the user. It returns false
	// when the email was already verified.
	MarkEmailVerified(ctx context.Context, userID string, at time.Time) (bool, error)

	// UpdateEmail replaces the user's email and clears its verification.
	UpdateEmail(ctx context.Context, userID, email string, at time.Time) (*models.User, error)

	CreateCredential(ctx context.Context, cred *models.Credential) error
	GetCredential(ctx context.Context, userID string) (*models.Credential, error)

	// ReplaceCredential drops the current credential and stores cred in its
	// place. Callers run it inside a transaction.
	ReplaceCredential(ctx context.Context, cred *models.Credential) error
}
