package repomanager

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/praylist/internal/dbx"
	"github.com/dmitrijs2005/praylist/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/praylist/internal/server/repositories/records"
	"github.com/dmitrijs2005/praylist/internal/server/repositories/sessions"
	"github.com/dmitrijs2005/praylist/internal/server/repositories/subscriptions"
)

// MemoryRepositoryManager keeps everything in process. The DBTX arguments
// are ignored; WithTx serialises transactions with a mutex.
type MemoryRepositoryManager struct {
	txMu          sync.Mutex
	accounts      *accounts.MemoryRepository
	sessions      *sessions.MemoryRepository
	records       *records.MemoryRepository
	subscriptions *subscriptions.MemoryRepository
}

func NewMemoryRepositoryManager() *MemoryRepositoryManager {
	return &MemoryRepositoryManager{
		accounts:      accounts.NewMemoryRepository(),
		sessions:      sessions.NewMemoryRepository(),
		records:       records.NewMemoryRepository(),
		subscriptions: subscriptions.NewMemoryRepository(),
	}
}

func (m *MemoryRepositoryManager) RunMigrations(context.Context) error { return nil }

func (m *MemoryRepositoryManager) Conn() dbx.DBTX { return nil }

func (m *MemoryRepositoryManager) Close() error { return nil }

func (m *MemoryRepositoryManager) WithTx(ctx context.Context, fn func(ctx context.Context, tx dbx.DBTX) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	return fn(ctx, nil)
}

func (m *MemoryRepositoryManager) Accounts(dbx.DBTX) accounts.Repository { return m.accounts }

func (m *MemoryRepositoryManager) Sessions(dbx.DBTX) sessions.Repository { return m.sessions }

func (m *MemoryRepositoryManager) Records(dbx.DBTX) records.Repository { return m.records }

func (m *MemoryRepositoryManager) Subscriptions(dbx.DBTX) subscriptions.Repository {
	return m.subscriptions
}
