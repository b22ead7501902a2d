// Package common contains shared constants and sentinel errors used across
// wadai server and client components.
package common

// AuthorizationHeaderName is the HTTP header and gRPC metadata key that
// carries the access token on outbound requests.
const AuthorizationHeaderName = "authorization"

// BearerScheme is the authorization scheme prefix for access tokens.
const BearerScheme = "Bearer"

// Verification token types.
const (
	TokenTypeEmailVerification = "email_verification"
	TokenTypePasswordReset     = "password_reset"
)

// RefreshSecretSize is the number of random bytes in a refresh or
// verification secret before hex encoding.
const RefreshSecretSize = 32
