// Package ratelimit throttles repeated failed logins per identifier.
package ratelimit

import (
	"context"
	"errors"
)

// ErrUnavailable reports that the limiter backend could not be reached.
var ErrUnavailable = errors.New("rate limiter unavailable")

// Limiter counts failures per key within a cooldown window.
type Limiter interface {
	// Check returns common.ErrRateLimited when key has exhausted its budget.
	Check(ctx context.Context, key string) error

	// Fail records one failed attempt for key.
	Fail(ctx context.Context, key string) error

	// Reset forgets the failures recorded for key.
	Reset(ctx context.Context, key string) error
}

// LoginKey builds the limiter key for a login identifier.
func LoginKey(identifier string) string {
	return "login:" + identifier
}
