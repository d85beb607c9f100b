// Package repomanager vends the server repositories for one storage backend
// and owns its connection, migrations and transactions.
package repomanager

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/praylist/internal/dbx"
	"github.com/dmitrijs2005/praylist/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/praylist/internal/server/repositories/records"
	"github.com/dmitrijs2005/praylist/internal/server/repositories/sessions"
	"github.com/dmitrijs2005/praylist/internal/server/repositories/subscriptions"
)

const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// RepositoryManager binds repositories to a DBTX. Callers pass Conn() for
// plain statements, or the tx handed to WithTx inside a transaction.
type RepositoryManager interface {
	RunMigrations(ctx context.Context) error
	Conn() dbx.DBTX
	WithTx(ctx context.Context, fn func(ctx context.Context, tx dbx.DBTX) error) error
	Close() error

	Accounts(db dbx.DBTX) accounts.Repository
	Sessions(db dbx.DBTX) sessions.Repository
	Records(db dbx.DBTX) records.Repository
	Subscriptions(db dbx.DBTX) subscriptions.Repository
}

// New opens the backend named by storage. dsn is ignored for memory.
func New(storage, dsn string) (RepositoryManager, error) {
	switch storage {
	case StoragePostgres, "":
		m, err := OpenPostgres(dsn)
		if err != nil {
			return nil, err
		}
		return m, nil
	case StorageMemory:
		return NewMemoryRepositoryManager(), nil
	default:
		return nil, fmt.Errorf("unknown storage %q", storage)
	}
}
