package repomanager

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/wadai/internal/dbx"
	"github.com/dmitrijs2005/wadai/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/wadai/internal/server/repositories/users"
	"github.com/dmitrijs2005/wadai/internal/server/repositories/verificationtokens"
)

// MemoryRepositoryManager keeps all state in process memory. The DBTX
// arguments are ignored; WithTx serializes units of work so a multi-step
// operation is not interleaved with another one. There is no rollback.
type MemoryRepositoryManager struct {
	txMu               sync.Mutex
	users              *users.MemoryRepository
	refreshTokens      *refreshtokens.MemoryRepository
	verificationTokens *verificationtokens.MemoryRepository
}

func NewMemoryRepositoryManager() *MemoryRepositoryManager {
	return &MemoryRepositoryManager{
		users:              users.NewMemoryRepository(),
		refreshTokens:      refreshtokens.NewMemoryRepository(),
		verificationTokens: verificationtokens.NewMemoryRepository(),
	}
}

func (m *MemoryRepositoryManager) RunMigrations(ctx context.Context) error { return nil }

func (m *MemoryRepositoryManager) Conn() dbx.DBTX { return nil }

func (m *MemoryRepositoryManager) WithTx(ctx context.Context, fn dbx.TxFunc) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	return fn(ctx, nil)
}

func (m *MemoryRepositoryManager) Users(dbx.DBTX) users.Repository { return m.users }

func (m *MemoryRepositoryManager) RefreshTokens(dbx.DBTX) refreshtokens.Repository {
	return m.refreshTokens
}

func (m *MemoryRepositoryManager) VerificationTokens(dbx.DBTX) verificationtokens.Repository {
	return m.verificationTokens
}

func (m *MemoryRepositoryManager) Close() error { return nil }
