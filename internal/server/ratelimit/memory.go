package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/wadai/internal/common"
	"golang.org/x/time/rate"
)

// pruneThreshold bounds the number of tracked keys before idle ones are
// dropped.
const pruneThreshold = 10000

// MemoryLimiter is a per-process token bucket per key. Each failure takes a
// token; the bucket refills completely over cooldown.
type MemoryLimiter struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	limit   rate.Limit
	burst   int
	nowFunc func() time.Time
}

func NewMemoryLimiter(maxAttempts int, cooldown time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		buckets: make(map[string]*rate.Limiter),
		limit:   rate.Every(cooldown / time.Duration(maxAttempts)),
		burst:   maxAttempts,
		nowFunc: time.Now,
	}
}

func (l *MemoryLimiter) Check(ctx context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		return nil
	}
	if b.TokensAt(l.nowFunc()) < 1 {
		return common.ErrRateLimited
	}
	return nil
}

func (l *MemoryLimiter) Fail(ctx context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		if len(l.buckets) >= pruneThreshold {
			l.prune()
		}
		b = rate.NewLimiter(l.limit, l.burst)
		l.buckets[key] = b
	}
	b.AllowN(l.nowFunc(), 1)
	return nil
}

func (l *MemoryLimiter) Reset(ctx context.Context, key string) error {
	l.mu.Lock()
	delete(l.buckets, key)
	l.mu.Unlock()
	return nil
}

// prune drops buckets that have fully refilled. Callers hold mu.
func (l *MemoryLimiter) prune() {
	now := l.nowFunc()
	for k, b := range l.buckets {
		if b.TokensAt(now) >= float64(l.burst) {
			delete(l.buckets, k)
		}
	}
}
