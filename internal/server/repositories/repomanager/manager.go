package repomanager

import (
	"context"

	"github.com/dmitrijs2005/wadai/internal/dbx"
	"github.com/dmitrijs2005/wadai/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/wadai/internal/server/repositories/users"
	"github.com/dmitrijs2005/wadai/internal/server/repositories/verificationtokens"
)

// RepositoryManager vends repositories bound to either the shared
// connection (Conn) or a transaction handle passed to a WithTx callback.
type RepositoryManager interface {
	dbx.Runner

	RunMigrations(ctx context.Context) error
	Conn() dbx.DBTX
	Users(db dbx.DBTX) users.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
	VerificationTokens(db dbx.DBTX) verificationtokens.Repository
	Close() error
}
