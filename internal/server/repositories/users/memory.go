package users

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/wadai/internal/common"
	"github.com/dmitrijs2005/wadai/internal/server/models"
)

var errCredentialExists = errors.New("credential already exists")

// MemoryRepository keeps users in process memory. It is used by the memory
// storage backend and by service tests.
type MemoryRepository struct {
	mu          sync.RWMutex
	users       map[string]*models.User
	credentials map[string]*models.Credential
	now         func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		users:       make(map[string]*models.User),
		credentials: make(map[string]*models.Credential),
		now:         time.Now,
	}
}

func (r *MemoryRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if strings.EqualFold(u.Username, user.Username) || strings.EqualFold(u.Email, user.Email) {
			return nil, common.ErrUsernameOrEmailTaken
		}
	}

	now := r.now()
	user.CreatedAt = now
	user.UpdatedAt = now

	stored := *user
	r.users[user.ID] = &stored

	return user, nil
}

func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	c := *u
	return &c, nil
}

func (r *MemoryRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if u.Email == email {
			c := *u
			return &c, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *MemoryRepository) MarkEmailVerified(ctx context.Context, userID string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[userID]
	if !ok || u.EmailVerified {
		return false, nil
	}
	u.EmailVerified = true
	u.EmailVerifiedAt = &at
	u.UpdatedAt = at
	return true, nil
}

func (r *MemoryRepository) UpdateEmail(ctx context.Context, userID, email string, at time.Time) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[userID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	for id, other := range r.users {
		if id != userID && strings.EqualFold(other.Email, email) {
			return nil, common.ErrUsernameOrEmailTaken
		}
	}

	u.Email = email
	u.EmailVerified = false
	u.EmailVerifiedAt = nil
	u.UpdatedAt = at
	c := *u
	return &c, nil
}

func (r *MemoryRepository) CreateCredential(ctx context.Context, cred *models.Credential) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[cred.UserID]; !ok {
		return common.ErrorNotFound
	}
	if _, ok := r.credentials[cred.UserID]; ok {
		return errCredentialExists
	}

	now := r.now()
	stored := *cred
	stored.CreatedAt = now
	stored.UpdatedAt = now
	r.credentials[cred.UserID] = &stored
	return nil
}

func (r *MemoryRepository) GetCredential(ctx context.Context, userID string) (*models.Credential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.credentials[userID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *MemoryRepository) ReplaceCredential(ctx context.Context, cred *models.Credential) error {
	r.mu.Lock()
	delete(r.credentials, cred.UserID)
	r.mu.Unlock()

	return r.CreateCredential(ctx, cred)
}
