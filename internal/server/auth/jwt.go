// Package auth issues and verifies access tokens.
//
// Access tokens are HS256 JWTs. They are stateless: verification needs only
// the signing secret, never the store.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/wadai/internal/common"
	"github.com/dmitrijs2005/wadai/internal/server/models"
	"github.com/golang-jwt/jwt/v5"
)

// Claims carries the registered claims plus the user's public handle.
type Claims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
	Email    string `json:"email"`
}

// UserID returns the subject.
func (c *Claims) UserID() string {
	return c.Subject
}

// TokenIssuer mints access tokens for a single issuer and secret.
type TokenIssuer struct {
	secret   []byte
	issuer   string
	validity time.Duration
	now      func() time.Time
}

func NewTokenIssuer(secret []byte, issuer string, validity time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: secret, issuer: issuer, validity: validity, now: time.Now}
}

// Validity returns the configured access token lifetime.
func (i *TokenIssuer) Validity() time.Duration {
	return i.validity
}

// IssueAccessToken signs a token for user and returns it with its expiry.
func (i *TokenIssuer) IssueAccessToken(user *models.User) (string, time.Time, error) {
	now := i.now()
	expiresAt := now.Add(i.validity)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Username: user.Username,
		Email:    user.Email,
	})

	tokenString, err := token.SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, err
	}

	return tokenString, expiresAt, nil
}

// TokenVerifier validates access tokens.
type TokenVerifier struct {
	secret []byte
	issuer string
	now    func() time.Time
}

func NewTokenVerifier(secret []byte, issuer string) *TokenVerifier {
	return &TokenVerifier{secret: secret, issuer: issuer, now: time.Now}
}

// Verify parses tokenString and returns its claims. Failures are classified
// into common.ErrTokenMalformed, common.ErrSignatureInvalid,
// common.ErrAccessExpired and common.ErrInvalidTokenClaim; callers must not
// expose the distinction to clients.
func (v *TokenVerifier) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}

	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(v.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return nil, classify(err)
	}

	if claims.Subject == "" {
		return nil, common.ErrInvalidTokenClaim
	}

	return claims, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %v", common.ErrTokenMalformed, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", common.ErrSignatureInvalid, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return common.ErrAccessExpired
	default:
		return fmt.Errorf("%w: %v", common.ErrInvalidTokenClaim, err)
	}
}
