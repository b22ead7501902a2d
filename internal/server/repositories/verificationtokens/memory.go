package verificationtokens

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dmitrijs2005/wadai/internal/common"
	"github.com/dmitrijs2005/wadai/internal/server/models"
)

var errDuplicateHash = errors.New("duplicate token hash")

type MemoryRepository struct {
	mu     sync.Mutex
	byHash map[string]*models.VerificationToken
	now    func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byHash: make(map[string]*models.VerificationToken), now: time.Now}
}

func (r *MemoryRepository) Create(ctx context.Context, token *models.VerificationToken) error {
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

func (r *MemoryRepository) Supersede(ctx context.Context, userID, tokenType string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for _, t := range r.byHash {
		if t.UserID == userID && t.TokenType == tokenType && !t.Used {
			t.Used = true
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepository) ConsumeActive(ctx context.Context, tokenHash, tokenType string, now time.Time) (*models.VerificationToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.byHash[tokenHash]
	if !ok || t.Used || t.TokenType != tokenType || t.Expired(now) {
		return nil, common.ErrorNotFound
	}
	t.Used = true
	c := *t
	return &c, nil
}

func (r *MemoryRepository) FindByHash(ctx context.Context, tokenHash string) (*models.VerificationToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.byHash[tokenHash]
	if !ok {
		return nil, common.ErrorNotFound
	}
	c := *t
	return &c, nil
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
