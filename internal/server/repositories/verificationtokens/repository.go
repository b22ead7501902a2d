// Package verificationtokens stores single-use email verification and
// password reset tokens.
package verificationtokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/wadai/internal/server/models"
)

// Repository persists verification tokens by the hash of their secret.
type Repository interface {
	Create(ctx context.Context, token *models.VerificationToken) error

	// Supersede marks every unused token of tokenType for the user as used.
	Supersede(ctx context.Context, userID, tokenType string) (int64, error)

	// ConsumeActive marks the token used if it is unused, of tokenType and
	// not expired at now, in one conditional update. It returns
	// common.ErrorNotFound when nothing matched.
	ConsumeActive(ctx context.Context, tokenHash, tokenType string, now time.Time) (*models.VerificationToken, error)

	FindByHash(ctx context.Context, tokenHash string) (*models.VerificationToken, error)

	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}
