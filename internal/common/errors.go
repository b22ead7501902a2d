package common

import "errors"

var (

	// repository specific errors
	ErrorNotFound = errors.New("not found")

	// service specific errors
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrValidation     = errors.New("validation error")
	ErrRateLimited    = errors.New("rate limited")

	// credential store errors
	ErrUsernameOrEmailTaken = errors.New("username or email already taken")
	ErrInvalidCredentials   = errors.New("invalid email or password")

	// access token errors
	ErrTokenMalformed    = errors.New("token malformed")
	ErrSignatureInvalid  = errors.New("token signature invalid")
	ErrAccessExpired     = errors.New("access token expired")
	ErrInvalidTokenClaim = errors.New("invalid token claims")

	// refresh token errors
	ErrRefreshNotFound = errors.New("refresh token not found")
	ErrRefreshExpired  = errors.New("refresh token expired")
	ErrRefreshRevoked  = errors.New("refresh token revoked")

	// verification token errors
	ErrVerificationNotFound     = errors.New("verification token not found")
	ErrVerificationExpired      = errors.New("verification token expired")
	ErrVerificationAlreadyUsed  = errors.New("verification token already used")
	ErrVerificationTypeMismatch = errors.New("verification token type mismatch")
	ErrEmailAlreadyVerified     = errors.New("email already verified")
)

// IsAccessTokenError reports whether err is one of the access token
// verification failures. All of them surface as "unauthenticated".
func IsAccessTokenError(err error) bool {
	return errors.Is(err, ErrTokenMalformed) ||
		errors.Is(err, ErrSignatureInvalid) ||
		errors.Is(err, ErrAccessExpired) ||
		errors.Is(err, ErrInvalidTokenClaim)
}

// IsRefreshError reports whether err is a refresh rotation failure.
func IsRefreshError(err error) bool {
	return errors.Is(err, ErrRefreshNotFound) ||
		errors.Is(err, ErrRefreshExpired) ||
		errors.Is(err, ErrRefreshRevoked)
}
