package session

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/wadai/internal/client/models"
	"github.com/dmitrijs2005/wadai/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/wadai/internal/dbx"
)

// TokenStore persists the token pair. Load returns (nil, nil) when nothing
// is stored.
type TokenStore interface {
	Load(ctx context.Context) (*models.TokenPair, error)
	Save(ctx context.Context, pair *models.TokenPair) error
	Clear(ctx context.Context) error
}

// MemoryStore keeps the pair for the lifetime of the process.
type MemoryStore struct {
	mu   sync.Mutex
	pair *models.TokenPair
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Load(context.Context) (*models.TokenPair, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pair == nil {
		return nil, nil
	}
	c := *m.pair
	return &c, nil
}

func (m *MemoryStore) Save(_ context.Context, pair *models.TokenPair) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *pair
	m.pair = &c
	return nil
}

func (m *MemoryStore) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pair = nil
	return nil
}

const (
	keyAccessToken      = "session.access_token"
	keyRefreshToken     = "session.refresh_token"
	keyAccessExpiresAt  = "session.access_expires_at"
	keyRefreshExpiresAt = "session.refresh_expires_at"
)

// MetadataStore keeps the pair in the local SQLite metadata table so a
// session survives restarts.
type MetadataStore struct {
	db *sql.DB
}

func NewMetadataStore(db *sql.DB) *MetadataStore {
	return &MetadataStore{db: db}
}

func (m *MetadataStore) Load(ctx context.Context) (*models.TokenPair, error) {
	values, err := metadata.NewSQLiteRepository(m.db).List(ctx)
	if err != nil {
		return nil, err
	}

	refresh := string(values[keyRefreshToken])
	if refresh == "" {
		return nil, nil
	}

	pair := &models.TokenPair{
		AccessToken:  string(values[keyAccessToken]),
		RefreshToken: refresh,
	}
	if pair.AccessExpiresAt, err = parseTime(values[keyAccessExpiresAt]); err != nil {
		return nil, err
	}
	if pair.RefreshExpiresAt, err = parseTime(values[keyRefreshExpiresAt]); err != nil {
		return nil, err
	}
	return pair, nil
}

// Save writes all four values in one transaction.
func (m *MetadataStore) Save(ctx context.Context, pair *models.TokenPair) error {
	return dbx.WithTx(ctx, m.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := metadata.NewSQLiteRepository(tx)

		values := map[string][]byte{
			keyAccessToken:      []byte(pair.AccessToken),
			keyRefreshToken:     []byte(pair.RefreshToken),
			keyAccessExpiresAt:  []byte(pair.AccessExpiresAt.UTC().Format(time.RFC3339Nano)),
			keyRefreshExpiresAt: []byte(pair.RefreshExpiresAt.UTC().Format(time.RFC3339Nano)),
		}
		for k, v := range values {
			if err := repo.Set(ctx, k, v); err != nil {
				return err
			}
		}
		return nil
	})
}

func (m *MetadataStore) Clear(ctx context.Context) error {
	return metadata.NewSQLiteRepository(m.db).DeleteMany(ctx,
		keyAccessToken, keyRefreshToken, keyAccessExpiresAt, keyRefreshExpiresAt)
}

func parseTime(b []byte) (time.Time, error) {
	if len(b) == 0 {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, string(b))
	if err != nil {
		return time.Time{}, fmt.Errorf("stored session is corrupt: %w", err)
	}
	return t, nil
}
