package refreshtokens

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/wadai/internal/common"
	"github.com/dmitrijs2005/wadai/internal/server/models"
)

// MemoryRepository is a mutex-guarded refresh registry. The conditional
// revoke runs under the write lock, which gives it the same at-most-one
// winner guarantee as the SQL version.
type MemoryRepository struct {
	mu     sync.Mutex
	byHash map[string]*models.RefreshToken
	now    func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byHash: make(map[string]*models.RefreshToken), now: time.Now}
}

func (r *MemoryRepository) Create(ctx context.Context, token *models.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byHash[token.TokenHash]; ok {
		return errDuplicateHash
	}

	stored := *token
	stored.CreatedAt = r.now()
	r.byHash[token.TokenHash] = &stored
	return nil
}

func (r *MemoryRepository) RevokeActive(ctx context.Context, tokenHash string, now time.Time) (*models.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.byHash[tokenHash]
	if !ok || t.Revoked || t.Expired(now) {
		return nil, common.ErrorNotFound
	}
	t.Revoked = true
	c := *t
	return &c, nil
}

func (r *MemoryRepository) FindByHash(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.byHash[tokenHash]
	if !ok {
		return nil, common.ErrorNotFound
	}
	c := *t
	return &c, nil
}

func (r *MemoryRepository) Revoke(ctx context.Context, tokenHash string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.byHash[tokenHash]
	if !ok || t.Revoked {
		return false, nil
	}
	t.Revoked = true
	return true, nil
}

func (r *MemoryRepository) RevokeAllForUser(ctx context.Context, userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for _, t := range r.byHash {
		if t.UserID == userID && !t.Revoked {
			t.Revoked = true
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for h, t := range r.byHash {
		if t.Expired(before) {
			delete(r.byHash, h)
			n++
		}
	}
	return n, nil
}
