// Package client talks to the wadai server.
//
// # Overview
//
// The package provides:
//  1. A transport contract (see the Client interface) for the account and
//     session endpoints: Register, Login, Refresh, Logout, Me and the
//     password and email flows.
//  2. HTTPClient, the JSON-over-HTTP implementation. It translates the
//     server's error envelope into the sentinel errors below.
//  3. GRPCClient, a thin gRPC connection used for liveness checks. Callers
//     plug the session interceptor in through dial options.
//  4. Local persistence bootstrap (InitDatabase, RunMigrations) wiring an
//     SQLite database with embedded goose migrations.
//
// # Error Handling
//
// Every failure that reaches the caller matches exactly one of:
// ErrUnauthorized, ErrSessionInvalid, ErrInvalidCredentials, ErrConflict,
// ErrRateLimited, ErrInvalidRequest, ErrVerificationInvalid,
// ErrVerificationExpired, ErrUnavailable. Match with errors.Is.
//
// Implementations are safe for concurrent use. All operations accept a
// context.Context and honor cancellation.
package client
