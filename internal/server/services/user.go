// Package services contains server-side business logic: issuing and rotating
// credentials, single-use verification tokens, and the account flows built
// on them.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/wadai/internal/common"
	"github.com/dmitrijs2005/wadai/internal/cryptox"
	"github.com/dmitrijs2005/wadai/internal/dbx"
	"github.com/dmitrijs2005/wadai/internal/logging"
	"github.com/dmitrijs2005/wadai/internal/server/models"
	"github.com/dmitrijs2005/wadai/internal/server/ratelimit"
	"github.com/dmitrijs2005/wadai/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// Notifier sends the account emails. Delivery failures never fail the
// request that triggered them.
type Notifier interface {
	SendVerification(ctx context.Context, to, username, secret string) error
	SendPasswordReset(ctx context.Context, to, username, secret string) error
}

// RegisterInput is the validated registration request.
type RegisterInput struct {
	Username    string
	Email       string
	Password    string
	DisplayName string
}

// UserService provides account operations:
//   - Register / Login: create or authenticate a user and mint a TokenPair
//   - Refresh / Logout / LogoutAll: rotate or revoke refresh credentials
//   - VerifyEmail / ResendVerification: email ownership
//   - RequestPasswordReset / ResetPassword / ChangePassword: credentials
type UserService struct {
	rm           repomanager.RepositoryManager
	tokens       *TokenService
	verification *VerificationService
	hasher       *cryptox.PasswordHasher
	notifier     Notifier
	limiter      ratelimit.Limiter
	now          func() time.Time
	logger       logging.Logger
}

// NewUserService wires the account flows. limiter may be nil to disable
// login throttling.
func NewUserService(rm repomanager.RepositoryManager, tokens *TokenService, verification *VerificationService,
	hasher *cryptox.PasswordHasher, notifier Notifier, limiter ratelimit.Limiter, logger logging.Logger) *UserService {
	return &UserService{
		rm:           rm,
		tokens:       tokens,
		verification: verification,
		hasher:       hasher,
		notifier:     notifier,
		limiter:      limiter,
		now:          time.Now,
		logger:       logger.With("module", "users"),
	}
}

// NormalizeEmail lowercases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates the user and credential, issues an email verification
// token and a session, all in one transaction, then sends the verification
// email.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*models.User, *TokenPair, error) {
	hash, salt, err := s.hashPassword(in.Password)
	if err != nil {
		return nil, nil, err
	}

	user := &models.User{
		ID:          uuid.NewString(),
		Username:    strings.TrimSpace(in.Username),
		Email:       NormalizeEmail(in.Email),
		DisplayName: strings.TrimSpace(in.DisplayName),
	}

	var (
		pair   *TokenPair
		secret string
	)
	err = s.rm.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		users := s.rm.Users(tx)

		if _, err := users.Create(ctx, user); err != nil {
			return err
		}
		if err := users.CreateCredential(ctx, &models.Credential{UserID: user.ID, PasswordHash: hash, Salt: salt}); err != nil {
			return err
		}

		var err error
		secret, err = s.verification.Issue(ctx, tx, user.ID, common.TokenTypeEmailVerification)
		if err != nil {
			return err
		}

		pair, err = s.tokens.IssuePair(ctx, tx, user)
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info(ctx, "user registered", "user_id", user.ID)

	if err := s.notifier.SendVerification(ctx, user.Email, user.Username, secret); err != nil {
		s.logger.Error(ctx, "send verification email", "user_id", user.ID, "error", err)
	}

	return user, pair, nil
}

// Login checks the password and mints a session. Unknown emails and wrong
// passwords both yield common.ErrInvalidCredentials and cost the same.
func (s *UserService) Login(ctx context.Context, email, password string) (*models.User, *TokenPair, error) {
	email = NormalizeEmail(email)
	key := ratelimit.LoginKey(email)

	if err := s.checkLimiter(ctx, key); err != nil {
		return nil, nil, err
	}

	pw := []byte(password)
	defer common.WipeByteArray(pw)

	users := s.rm.Users(s.rm.Conn())

	user, err := users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.hasher.DummyVerify(pw)
			s.recordFailure(ctx, key)
			return nil, nil, common.ErrInvalidCredentials
		}
		return nil, nil, err
	}

	cred, err := users.GetCredential(ctx, user.ID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.hasher.DummyVerify(pw)
			s.recordFailure(ctx, key)
			return nil, nil, common.ErrInvalidCredentials
		}
		return nil, nil, err
	}

	ok, err := s.hasher.Verify(pw, cred.PasswordHash)
	if err != nil {
		return nil, nil, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		s.recordFailure(ctx, key)
		return nil, nil, common.ErrInvalidCredentials
	}

	if s.limiter != nil {
		if err := s.limiter.Reset(ctx, key); err != nil {
			s.logger.Warn(ctx, "reset login limiter", "error", err)
		}
	}

	pair, err := s.tokens.IssuePair(ctx, s.rm.Conn(), user)
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info(ctx, "user logged in", "user_id", user.ID)
	return user, pair, nil
}

// checkLimiter fails open when the limiter backend is down.
func (s *UserService) checkLimiter(ctx context.Context, key string) error {
	if s.limiter == nil {
		return nil
	}
	err := s.limiter.Check(ctx, key)
	if errors.Is(err, common.ErrRateLimited) {
		return err
	}
	if err != nil {
		s.logger.Warn(ctx, "login limiter unavailable", "error", err)
	}
	return nil
}

func (s *UserService) recordFailure(ctx context.Context, key string) {
	if s.limiter == nil {
		return
	}
	if err := s.limiter.Fail(ctx, key); err != nil {
		s.logger.Warn(ctx, "record login failure", "error", err)
	}
}

// Refresh rotates a refresh secret into a new pair.
func (s *UserService) Refresh(ctx context.Context, refreshSecret string) (*TokenPair, error) {
	return s.tokens.Rotate(ctx, refreshSecret)
}

// Logout revokes the presented refresh secret. Unknown secrets are ignored.
func (s *UserService) Logout(ctx context.Context, refreshSecret string) error {
	return s.tokens.RevokeOne(ctx, refreshSecret)
}

// LogoutAll revokes every refresh credential of the user.
func (s *UserService) LogoutAll(ctx context.Context, userID string) error {
	_, err := s.tokens.RevokeAll(ctx, s.rm.Conn(), userID)
	return err
}

// VerifyEmail consumes an email verification secret and marks the address
// verified. It reports alreadyVerified when the address was verified before;
// that is not an error.
func (s *UserService) VerifyEmail(ctx context.Context, secret string) (alreadyVerified bool, err error) {
	var userID string
	err = s.rm.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		userID, err = s.verification.Consume(ctx, tx, secret, common.TokenTypeEmailVerification)
		if err != nil {
			return err
		}

		changed, err := s.rm.Users(tx).MarkEmailVerified(ctx, userID, s.now())
		if err != nil {
			return err
		}
		alreadyVerified = !changed
		return nil
	})
	if err != nil {
		return false, err
	}

	s.logger.Info(ctx, "email verified", "user_id", userID, "already_verified", alreadyVerified)
	return alreadyVerified, nil
}

// ResendVerification issues a fresh email verification token, superseding
// earlier ones. It returns common.ErrEmailAlreadyVerified when there is
// nothing to verify.
func (s *UserService) ResendVerification(ctx context.Context, userID string) error {
	user, err := s.rm.Users(s.rm.Conn()).GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if user.EmailVerified {
		return common.ErrEmailAlreadyVerified
	}

	var secret string
	err = s.rm.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		secret, err = s.verification.Issue(ctx, tx, user.ID, common.TokenTypeEmailVerification)
		return err
	})
	if err != nil {
		return err
	}

	if err := s.notifier.SendVerification(ctx, user.Email, user.Username, secret); err != nil {
		s.logger.Error(ctx, "send verification email", "user_id", user.ID, "error", err)
	}
	return nil
}

// RequestPasswordReset issues a reset token and emails it. Unknown emails
// succeed silently so the endpoint does not reveal which accounts exist.
func (s *UserService) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := s.rm.Users(s.rm.Conn()).GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.logger.Debug(ctx, "password reset for unknown email")
			return nil
		}
		return err
	}

	var secret string
	err = s.rm.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		secret, err = s.verification.Issue(ctx, tx, user.ID, common.TokenTypePasswordReset)
		return err
	})
	if err != nil {
		return err
	}

	if err := s.notifier.SendPasswordReset(ctx, user.Email, user.Username, secret); err != nil {
		s.logger.Error(ctx, "send password reset email", "user_id", user.ID, "error", err)
	}
	return nil
}

// ResetPassword consumes a reset secret, replaces the credential and revokes
// every refresh credential of the user, in one transaction.
func (s *UserService) ResetPassword(ctx context.Context, secret, newPassword string) error {
	hash, salt, err := s.hashPassword(newPassword)
	if err != nil {
		return err
	}

	var userID string
	err = s.rm.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		userID, err = s.verification.Consume(ctx, tx, secret, common.TokenTypePasswordReset)
		if err != nil {
			return err
		}

		if err := s.rm.Users(tx).ReplaceCredential(ctx, &models.Credential{UserID: userID, PasswordHash: hash, Salt: salt}); err != nil {
			return err
		}

		_, err = s.tokens.RevokeAll(ctx, tx, userID)
		return err
	})
	if err != nil {
		return err
	}

	s.logger.Info(ctx, "password reset", "user_id", userID)
	return nil
}

// ChangePassword replaces the credential after checking the current
// password. Existing sessions stay valid.
func (s *UserService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	cred, err := s.rm.Users(s.rm.Conn()).GetCredential(ctx, userID)
	if err != nil {
		return err
	}

	current := []byte(currentPassword)
	ok, err := s.hasher.Verify(current, cred.PasswordHash)
	common.WipeByteArray(current)
	if err != nil {
		return fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return common.ErrInvalidCredentials
	}

	hash, salt, err := s.hashPassword(newPassword)
	if err != nil {
		return err
	}

	err = s.rm.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		return s.rm.Users(tx).ReplaceCredential(ctx, &models.Credential{UserID: userID, PasswordHash: hash, Salt: salt})
	})
	if err != nil {
		return err
	}

	s.logger.Info(ctx, "password changed", "user_id", userID)
	return nil
}

// ChangeEmail moves the account to a new address. The address becomes
// unverified and a verification token is mailed to it; tokens issued for the
// old address are superseded. Changing to the current address is a no-op.
func (s *UserService) ChangeEmail(ctx context.Context, userID, newEmail string) (*models.User, error) {
	email := NormalizeEmail(newEmail)

	current, err := s.rm.Users(s.rm.Conn()).GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if current.Email == email {
		return current, nil
	}

	var (
		user   *models.User
		secret string
	)
	err = s.rm.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		user, err = s.rm.Users(tx).UpdateEmail(ctx, userID, email, s.now())
		if err != nil {
			return err
		}

		secret, err = s.verification.Issue(ctx, tx, userID, common.TokenTypeEmailVerification)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "email changed", "user_id", userID)
	if err := s.notifier.SendVerification(ctx, user.Email, user.Username, secret); err != nil {
		s.logger.Error(ctx, "send verification email", "user_id", userID, "error", err)
	}
	return user, nil
}

// CurrentUser returns the profile of userID.
func (s *UserService) CurrentUser(ctx context.Context, userID string) (*models.User, error) {
	return s.rm.Users(s.rm.Conn()).GetByID(ctx, userID)
}

func (s *UserService) hashPassword(password string) (string, string, error) {
	pw := []byte(password)
	defer common.WipeByteArray(pw)

	hash, salt, err := s.hasher.Hash(pw)
	if err != nil {
		return "", "", fmt.Errorf("hash password: %w", err)
	}
	return hash, salt, nil
}
