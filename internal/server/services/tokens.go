package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/wadai/internal/common"
	"github.com/dmitrijs2005/wadai/internal/dbx"
	"github.com/dmitrijs2005/wadai/internal/logging"
	"github.com/dmitrijs2005/wadai/internal/server/auth"
	"github.com/dmitrijs2005/wadai/internal/server/models"
	"github.com/dmitrijs2005/wadai/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// TokenPair bundles a short-lived access token and a long-lived refresh token.
// RefreshToken is the raw secret; it is never stored and is returned only here.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// TokenService issues credential pairs and runs the refresh rotation protocol.
type TokenService struct {
	rm                           repomanager.RepositoryManager
	issuer                       *auth.TokenIssuer
	refreshTokenValidityDuration time.Duration
	now                          func() time.Time
	logger                       logging.Logger
}

func NewTokenService(rm repomanager.RepositoryManager, issuer *auth.TokenIssuer, refreshValidity time.Duration, logger logging.Logger) *TokenService {
	return &TokenService{
		rm:                           rm,
		issuer:                       issuer,
		refreshTokenValidityDuration: refreshValidity,
		now:                          time.Now,
		logger:                       logger.With("module", "tokens"),
	}
}

// IssueAccessToken signs an access token for user.
func (s *TokenService) IssueAccessToken(user *models.User) (string, time.Time, error) {
	return s.issuer.IssueAccessToken(user)
}

// IssueRefreshToken creates a refresh token for userID through db and returns
// the raw secret with its expiry.
func (s *TokenService) IssueRefreshToken(ctx context.Context, db dbx.DBTX, userID string) (string, time.Time, error) {
	secret, err := common.MakeRandHexString(common.RefreshSecretSize)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("generate refresh secret: %w", err)
	}

	expiresAt := s.now().Add(s.refreshTokenValidityDuration)
	token := &models.RefreshToken{
		ID:        uuid.NewString(),
		UserID:    userID,
		TokenHash: common.HashSecret(secret),
		ExpiresAt: expiresAt,
	}

	if err := s.rm.RefreshTokens(db).Create(ctx, token); err != nil {
		return "", time.Time{}, fmt.Errorf("store refresh token: %w", err)
	}

	return secret, expiresAt, nil
}

// IssuePair mints an access token and a refresh token for user. Pass the
// transaction handle when the pair is part of a larger unit of work.
func (s *TokenService) IssuePair(ctx context.Context, db dbx.DBTX, user *models.User) (*TokenPair, error) {
	access, accessExp, err := s.issuer.IssueAccessToken(user)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	refresh, refreshExp, err := s.IssueRefreshToken(ctx, db, user.ID)
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// Rotate exchanges a live refresh secret for a new pair. The old token is
// revoked by a single conditional update, so of concurrent callers with the
// same secret exactly one succeeds. Failures are common.ErrRefreshNotFound,
// common.ErrRefreshExpired or common.ErrRefreshRevoked; anything else is a
// store failure.
func (s *TokenService) Rotate(ctx context.Context, secret string) (*TokenPair, error) {
	hash := common.HashSecret(secret)
	now := s.now()

	var pair *TokenPair
	err := s.rm.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		old, err := s.rm.RefreshTokens(tx).RevokeActive(ctx, hash, now)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return s.classifyRefreshFailure(ctx, tx, hash, now)
			}
			return err
		}

		user, err := s.rm.Users(tx).GetByID(ctx, old.UserID)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrRefreshNotFound
			}
			return err
		}

		pair, err = s.IssuePair(ctx, tx, user)
		return err
	})
	if err != nil {
		return nil, err
	}

	return pair, nil
}

// classifyRefreshFailure explains why no live token matched hash.
func (s *TokenService) classifyRefreshFailure(ctx context.Context, db dbx.DBTX, hash string, now time.Time) error {
	token, err := s.rm.RefreshTokens(db).FindByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrRefreshNotFound
		}
		return err
	}

	switch {
	case token.Revoked:
		s.logger.Warn(ctx, "refresh token reuse", "user_id", token.UserID, "token_id", token.ID)
		return common.ErrRefreshRevoked
	case token.Expired(now):
		return common.ErrRefreshExpired
	default:
		return common.ErrRefreshNotFound
	}
}

// RevokeOne revokes the refresh token behind secret. Unknown or already
// revoked secrets are not an error.
func (s *TokenService) RevokeOne(ctx context.Context, secret string) error {
	_, err := s.rm.RefreshTokens(s.rm.Conn()).Revoke(ctx, common.HashSecret(secret))
	return err
}

// RevokeAll revokes every live refresh token of userID through db.
func (s *TokenService) RevokeAll(ctx context.Context, db dbx.DBTX, userID string) (int64, error) {
	n, err := s.rm.RefreshTokens(db).RevokeAllForUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	s.logger.Info(ctx, "refresh tokens revoked", "user_id", userID, "count", n)
	return n, nil
}

// PurgeExpired deletes refresh tokens past their expiry.
func (s *TokenService) PurgeExpired(ctx context.Context) (int64, error) {
	return s.rm.RefreshTokens(s.rm.Conn()).DeleteExpired(ctx, s.now())
}
