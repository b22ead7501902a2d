package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/wadai/internal/common"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "wadai:rl:"

// RedisLimiter is a fixed-window counter shared by every server instance.
// The window starts with the first failure and lasts cooldown.
type RedisLimiter struct {
	client      redis.UniversalClient
	maxAttempts int
	cooldown    time.Duration
}

func NewRedisLimiter(client redis.UniversalClient, maxAttempts int, cooldown time.Duration) *RedisLimiter {
	return &RedisLimiter{client: client, maxAttempts: maxAttempts, cooldown: cooldown}
}

func (l *RedisLimiter) Check(ctx context.Context, key string) error {
	count, err := l.client.Get(ctx, redisKeyPrefix+key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if count >= int64(l.maxAttempts) {
		return common.ErrRateLimited
	}

	return nil
}

func (l *RedisLimiter) Fail(ctx context.Context, key string) error {
	k := redisKeyPrefix + key

	count, err := l.client.Incr(ctx, k).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	// the window is fixed by the first failure
	if count == 1 {
		if err := l.client.Expire(ctx, k, l.cooldown).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}

	return nil
}

func (l *RedisLimiter) Reset(ctx context.Context, key string) error {
	if err := l.client.Del(ctx, redisKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
