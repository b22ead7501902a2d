package users

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

func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {

	query :=
		`INSERT INTO users (id, username, email, display_name)
		 VALUES ($1, $2, $3, $4)
		 RETURNING created_at, updated_at
		 `

	err := r.db.QueryRowContext(ctx, query,
		user.ID, user.Username, user.Email, user.DisplayName).Scan(&user.CreatedAt, &user.UpdatedAt)

	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return nil, common.ErrUsernameOrEmailTaken
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

const selectUser = `SELECT id, username, email, display_name, email_verified, email_verified_at, created_at, updated_at FROM users`

func (r *PostgresRepository) getOne(ctx context.Context, query string, args ...any) (*models.User, error) {
	user := &models.User{}
	var verifiedAt sql.NullTime

	err := r.db.QueryRowContext(ctx, query, args...).Scan(&user.ID, &user.Username, &user.Email, &user.DisplayName,
		&user.EmailVerified, &verifiedAt, &user.CreatedAt, &user.UpdatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		if dbx.IsUniqueViolation(err) {
			return nil, common.ErrUsernameOrEmailTaken
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	if verifiedAt.Valid {
		t := verifiedAt.Time
		user.EmailVerifiedAt = &t
	}

	return user, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	return r.getOne(ctx, selectUser+` WHERE id = $1`, id)
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getOne(ctx, selectUser+` WHERE email = $1`, email)
}

func (r *PostgresRepository) MarkEmailVerified(ctx context.Context, userID string, at time.Time) (bool, error) {
	query :=
		`UPDATE users SET email_verified = TRUE, email_verified_at = $2, updated_at = $2
		 WHERE id = $1 AND email_verified = FALSE
		 `

	res, err := r.db.ExecContext(ctx, query, userID, at)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}

	return n == 1, nil
}

func (r *PostgresRepository) UpdateEmail(ctx context.Context, userID, email string, at time.Time) (*models.User, error) {
	query :=
		`UPDATE users SET email = $2, email_verified = FALSE, email_verified_at = NULL, updated_at = $3
		 WHERE id = $1
		 RETURNING id, username, email, display_name, email_verified, email_verified_at, created_at, updated_at
		 `

	return r.getOne(ctx, query, userID, email, at)
}

func (r *PostgresRepository) CreateCredential(ctx context.Context, cred *models.Credential) error {
	query :=
		`INSERT INTO user_credentials (user_id, password_hash, salt)
		 VALUES ($1, $2, $3)
		 `

	_, err := r.db.ExecContext(ctx, query, cred.UserID, cred.PasswordHash, cred.Salt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

func (r *PostgresRepository) GetCredential(ctx context.Context, userID string) (*models.Credential, error) {
	query :=
		`SELECT user_id, password_hash, salt, created_at, updated_at FROM user_credentials
		 WHERE user_id = $1
		 `

	cred := &models.Credential{}
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&cred.UserID, &cred.PasswordHash, &cred.Salt, &cred.CreatedAt, &cred.UpdatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return cred, nil
}

func (r *PostgresRepository) ReplaceCredential(ctx context.Context, cred *models.Credential) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM user_credentials WHERE user_id = $1`, cred.UserID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return r.CreateCredential(ctx, cred)
}
