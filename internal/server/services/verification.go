package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/wadai/internal/common"
	"github.com/dmitrijs2005/wadai/internal/dbx"
	"github.com/dmitrijs2005/wadai/internal/server/models"
	"github.com/dmitrijs2005/wadai/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// VerificationService issues and consumes single-use tokens for email
// verification and password reset.
type VerificationService struct {
	rm       repomanager.RepositoryManager
	validity time.Duration
	now      func() time.Time
}

func NewVerificationService(rm repomanager.RepositoryManager, validity time.Duration) *VerificationService {
	return &VerificationService{rm: rm, validity: validity, now: time.Now}
}

// Issue supersedes the user's live tokens of tokenType and stores a new one.
// It returns the raw secret. Run it inside a transaction.
func (s *VerificationService) Issue(ctx context.Context, db dbx.DBTX, userID, tokenType string) (string, error) {
	repo := s.rm.VerificationTokens(db)

	if _, err := repo.Supersede(ctx, userID, tokenType); err != nil {
		return "", fmt.Errorf("supersede verification tokens: %w", err)
	}

	secret, err := common.MakeRandHexString(common.RefreshSecretSize)
	if err != nil {
		return "", fmt.Errorf("generate verification secret: %w", err)
	}

	token := &models.VerificationToken{
		ID:        uuid.NewString(),
		UserID:    userID,
		TokenHash: common.HashSecret(secret),
		TokenType: tokenType,
		ExpiresAt: s.now().Add(s.validity),
	}
	if err := repo.Create(ctx, token); err != nil {
		return "", fmt.Errorf("store verification token: %w", err)
	}

	return secret, nil
}

// Consume marks the token used and returns its user id. It fails with
// common.ErrVerificationNotFound, ErrVerificationTypeMismatch,
// ErrVerificationAlreadyUsed or ErrVerificationExpired. Run it in the same
// transaction as the side effect it authorizes.
func (s *VerificationService) Consume(ctx context.Context, db dbx.DBTX, secret, tokenType string) (string, error) {
	repo := s.rm.VerificationTokens(db)
	hash := common.HashSecret(secret)
	now := s.now()

	token, err := repo.ConsumeActive(ctx, hash, tokenType, now)
	if err == nil {
		return token.UserID, nil
	}
	if !errors.Is(err, common.ErrorNotFound) {
		return "", err
	}

	found, err := repo.FindByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return "", common.ErrVerificationNotFound
		}
		return "", err
	}

	switch {
	case found.TokenType != tokenType:
		return "", common.ErrVerificationTypeMismatch
	case found.Used:
		return "", common.ErrVerificationAlreadyUsed
	case found.Expired(now):
		return "", common.ErrVerificationExpired
	default:
		return "", common.ErrVerificationNotFound
	}
}

// PurgeExpired deletes verification tokens past their expiry.
func (s *VerificationService) PurgeExpired(ctx context.Context) (int64, error) {
	return s.rm.VerificationTokens(s.rm.Conn()).DeleteExpired(ctx, s.now())
}
