package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/wadai/internal/common"
	"github.com/dmitrijs2005/wadai/internal/dbx"
	"github.com/dmitrijs2005/wadai/internal/logging"
	"github.com/dmitrijs2005/wadai/internal/server/auth"
	"github.com/dmitrijs2005/wadai/internal/server/repositories/repomanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenService_IssuePair(t *testing.T) {
	env := newTestEnv(t, nil)
	user, pair := env.register(t, "kenji", "kenji@example.com", "correct horse")

	assert.Len(t, pair.RefreshToken, 2*common.RefreshSecretSize)
	assert.True(t, pair.RefreshExpiresAt.After(pair.AccessExpiresAt))

	claims, err := env.verifier.Verify(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID())
	assert.Equal(t, "kenji", claims.Username)

	stored, err := env.rm.RefreshTokens(nil).FindByHash(context.Background(), common.HashSecret(pair.RefreshToken))
	require.NoError(t, err)
	assert.Equal(t, user.ID, stored.UserID)
	assert.False(t, stored.Revoked)
}

func TestTokenService_Rotate(t *testing.T) {
	env := newTestEnv(t, nil)
	user, pair := env.register(t, "kenji", "kenji@example.com", "correct horse")
	ctx := context.Background()

	next, err := env.tokens.Rotate(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, pair.RefreshToken, next.RefreshToken)

	claims, err := env.verifier.Verify(next.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID())

	old, err := env.rm.RefreshTokens(nil).FindByHash(ctx, common.HashSecret(pair.RefreshToken))
	require.NoError(t, err)
	assert.True(t, old.Revoked)

	// access tokens are stateless; the old one stays valid until it expires
	_, err = env.verifier.Verify(pair.AccessToken)
	require.NoError(t, err)

	// the replacement is itself rotatable
	_, err = env.tokens.Rotate(ctx, next.RefreshToken)
	require.NoError(t, err)
}

func TestTokenService_Rotate_ReuseRejected(t *testing.T) {
	env := newTestEnv(t, nil)
	_, pair := env.register(t, "kenji", "kenji@example.com", "correct horse")
	ctx := context.Background()

	next, err := env.tokens.Rotate(ctx, pair.RefreshToken)
	require.NoError(t, err)

	_, err = env.tokens.Rotate(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, common.ErrRefreshRevoked)

	// the legitimate successor is not affected by the replay
	_, err = env.tokens.Rotate(ctx, next.RefreshToken)
	assert.NoError(t, err)
}

func TestTokenService_Rotate_Expired(t *testing.T) {
	env := newTestEnv(t, nil)
	_, pair := env.register(t, "kenji", "kenji@example.com", "correct horse")

	env.tokens.now = func() time.Time { return pair.RefreshExpiresAt }

	_, err := env.tokens.Rotate(context.Background(), pair.RefreshToken)
	assert.ErrorIs(t, err, common.ErrRefreshExpired)
}

func TestTokenService_Rotate_Unknown(t *testing.T) {
	env := newTestEnv(t, nil)

	_, err := env.tokens.Rotate(context.Background(), "deadbeef")
	assert.ErrorIs(t, err, common.ErrRefreshNotFound)
	assert.True(t, common.IsRefreshError(err))
}

func TestTokenService_Rotate_ConcurrentSingleWinner(t *testing.T) {
	env := newTestEnv(t, nil)
	_, pair := env.register(t, "kenji", "kenji@example.com", "correct horse")

	const callers = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		wins    int
		revoked int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.tokens.Rotate(context.Background(), pair.RefreshToken)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, common.ErrRefreshRevoked):
				revoked++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, callers-1, revoked)
}

func TestTokenService_RevokeOne(t *testing.T) {
	env := newTestEnv(t, nil)
	_, pair := env.register(t, "kenji", "kenji@example.com", "correct horse")
	ctx := context.Background()

	require.NoError(t, env.tokens.RevokeOne(ctx, pair.RefreshToken))
	require.NoError(t, env.tokens.RevokeOne(ctx, pair.RefreshToken))
	require.NoError(t, env.tokens.RevokeOne(ctx, "never-issued"))

	_, err := env.tokens.Rotate(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, common.ErrRefreshRevoked)
}

func TestTokenService_RevokeAll(t *testing.T) {
	env := newTestEnv(t, nil)
	user, first := env.register(t, "kenji", "kenji@example.com", "correct horse")
	ctx := context.Background()

	second, err := env.tokens.IssuePair(ctx, nil, user)
	require.NoError(t, err)

	n, err := env.tokens.RevokeAll(ctx, nil, user.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	for _, secret := range []string{first.RefreshToken, second.RefreshToken} {
		_, err := env.tokens.Rotate(ctx, secret)
		assert.ErrorIs(t, err, common.ErrRefreshRevoked)
	}
}

func TestTokenService_PurgeExpired(t *testing.T) {
	env := newTestEnv(t, nil)
	_, pair := env.register(t, "kenji", "kenji@example.com", "correct horse")
	ctx := context.Background()

	n, err := env.tokens.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	env.tokens.now = func() time.Time { return pair.RefreshExpiresAt.Add(time.Second) }
	n, err = env.tokens.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	_, err = env.tokens.Rotate(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, common.ErrRefreshNotFound)
}

type failingTxManager struct {
	*repomanager.MemoryRepositoryManager
	err error
}

func (m *failingTxManager) WithTx(context.Context, dbx.TxFunc) error { return m.err }

func TestTokenService_Rotate_StoreFailure(t *testing.T) {
	boom := errors.New("connection reset")
	rm := &failingTxManager{MemoryRepositoryManager: repomanager.NewMemoryRepositoryManager(), err: boom}
	svc := NewTokenService(rm, auth.NewTokenIssuer([]byte("k"), "wadai", time.Minute), time.Hour, logging.Nop())

	_, err := svc.Rotate(context.Background(), "secret")
	assert.ErrorIs(t, err, boom)
	assert.False(t, common.IsRefreshError(err))
}
