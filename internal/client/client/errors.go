package client

import "errors"

var (
	// ErrUnavailable covers transport failures, timeouts and 5xx answers.
	ErrUnavailable = errors.New("server unavailable")
	// ErrUnauthorized means the access token was rejected; a refresh may fix it.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrSessionInvalid means the refresh token was rejected; log in again.
	ErrSessionInvalid      = errors.New("session is no longer valid")
	ErrInvalidCredentials  = errors.New("invalid email or password")
	ErrConflict            = errors.New("username or email already registered")
	ErrRateLimited         = errors.New("too many attempts")
	ErrInvalidRequest      = errors.New("invalid request")
	ErrVerificationInvalid = errors.New("invalid or used link")
	ErrVerificationExpired = errors.New("link expired")
)
