package ratelimit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/dmitrijs2005/wadai/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLimiter_BlocksAndRefills(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	l := NewMemoryLimiter(3, 3*time.Minute)
	l.nowFunc = func() time.Time { return now }

	key := LoginKey("kenji@example.com")
	for i := 0; i < 3; i++ {
		require.NoError(t, l.Check(ctx, key))
		require.NoError(t, l.Fail(ctx, key))
	}
	assert.ErrorIs(t, l.Check(ctx, key), common.ErrRateLimited)

	// one token per minute comes back
	now = now.Add(time.Minute)
	assert.NoError(t, l.Check(ctx, key))
}

func TestMemoryLimiter_Reset(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLimiter(1, time.Hour)

	require.NoError(t, l.Fail(ctx, "k"))
	require.ErrorIs(t, l.Check(ctx, "k"), common.ErrRateLimited)

	require.NoError(t, l.Reset(ctx, "k"))
	assert.NoError(t, l.Check(ctx, "k"))
}

func TestMemoryLimiter_PrunesIdleBuckets(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	l := NewMemoryLimiter(2, time.Minute)
	l.nowFunc = func() time.Time { return now }

	for i := 0; i < pruneThreshold; i++ {
		require.NoError(t, l.Fail(ctx, fmt.Sprintf("k%d", i)))
	}

	now = now.Add(time.Hour)
	require.NoError(t, l.Fail(ctx, "fresh"))

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.Len(t, l.buckets, 1)
}
