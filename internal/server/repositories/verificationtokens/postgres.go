package verificationtokens

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/wadai/internal/common"
	"github.com/dmitrijs2005/wadai/internal/dbx"
	"github.com/dmitrijs2005/wadai/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, token *models.VerificationToken) error {
	query :=
		`INSERT INTO verification_tokens (id, user_id, token_hash, token_type, expires_at)
		 VALUES ($1, $2, $3, $4, $5)
		 `

	_, err := r.db.ExecContext(ctx, query, token.ID, token.UserID, token.TokenHash, token.TokenType, token.ExpiresAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

func (r *PostgresRepository) Supersede(ctx context.Context, userID, tokenType string) (int64, error) {
	query :=
		`UPDATE verification_tokens SET used = TRUE
		 WHERE user_id = $1 AND token_type = $2 AND used = FALSE
		 `

	res, err := r.db.ExecContext(ctx, query, userID, tokenType)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	return res.RowsAffected()
}

func (r *PostgresRepository) ConsumeActive(ctx context.Context, tokenHash, tokenType string, now time.Time) (*models.VerificationToken, error) {
	query :=
		`UPDATE verification_tokens SET used = TRUE
		 WHERE token_hash = $1 AND token_type = $2 AND used = FALSE AND expires_at > $3
		 RETURNING id, user_id, expires_at, created_at
		 `

	token := &models.VerificationToken{TokenHash: tokenHash, TokenType: tokenType, Used: true}
	err := r.db.QueryRowContext(ctx, query, tokenHash, tokenType, now).Scan(&token.ID, &token.UserID, &token.ExpiresAt, &token.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return token, nil
}

func (r *PostgresRepository) FindByHash(ctx context.Context, tokenHash string) (*models.VerificationToken, error) {
	query :=
		`SELECT id, user_id, token_type, expires_at, used, created_at FROM verification_tokens
		 WHERE token_hash = $1
		 `

	token := &models.VerificationToken{TokenHash: tokenHash}
	err := r.db.QueryRowContext(ctx, query, tokenHash).Scan(&token.ID, &token.UserID, &token.TokenType, &token.ExpiresAt, &token.Used, &token.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return token, nil
}

func (r *PostgresRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM verification_tokens WHERE expires_at <= $1`, before)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	return res.RowsAffected()
}
