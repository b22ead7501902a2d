// Package refreshtokens declares the refresh registry: the persisted,
// revocable half of refresh credentials.
package refreshtokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/wadai/internal/server/models"
)

// Repository stores refresh tokens by the SHA-256 hash of their secret.
type Repository interface {
	// Create stores a new live token.
	Create(ctx context.Context, token *models.RefreshToken) error

	// RevokeActive revokes the token with tokenHash if and only if it is not
	// revoked and not expired at now, in a single conditional update. It
	// returns the revoked row, or common.ErrorNotFound when no live token
	// matched. Of concurrent callers presenting the same hash, at most one
	// gets the row.
	RevokeActive(ctx context.Context, tokenHash string, now time.Time) (*models.RefreshToken, error)

	// FindByHash returns the token regardless of its state. Implementations
	// return common.ErrorNotFound when the hash is unknown.
	FindByHash(ctx context.Context, tokenHash string) (*models.RefreshToken, error)

	// Revoke marks the token revoked whatever its expiry. It reports whether
	// a live row was changed.
	Revoke(ctx context.Context, tokenHash string) (bool, error)

	// RevokeAllForUser revokes every live token of the user.
	RevokeAllForUser(ctx context.Context, userID string) (int64, error)

	// DeleteExpired removes tokens that expired at or before the given time.
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}
