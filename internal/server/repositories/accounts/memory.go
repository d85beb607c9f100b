package accounts

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/praylist/internal/common"
	"github.com/dmitrijs2005/praylist/internal/server/models"
)

// MemoryRepository keeps accounts in a map. It is safe for concurrent use.
type MemoryRepository struct {
	mu       sync.RWMutex
	accounts map[string]models.Account
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{accounts: make(map[string]models.Account)}
}

func (r *MemoryRepository) Create(_ context.Context, account *models.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.accounts[account.ID]; ok {
		return fmt.Errorf("db error: account %s already exists", account.ID)
	}
	account.CreatedAt = time.Now()
	r.accounts[account.ID] = clone(*account)
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, id string) (*models.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.accounts[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	out := clone(a)
	return &out, nil
}

func (r *MemoryRepository) UpdateMetadata(_ context.Context, id string, metadata json.RawMessage, version int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.accounts[id]
	if !ok || a.MetadataVersion >= version {
		return common.ErrVersionConflict
	}
	a.Metadata = append(json.RawMessage(nil), metadata...)
	a.MetadataVersion = version
	r.accounts[id] = a
	return nil
}

func clone(a models.Account) models.Account {
	a.Salt = append([]byte(nil), a.Salt...)
	a.AuthHash = append([]byte(nil), a.AuthHash...)
	if a.Metadata != nil {
		a.Metadata = append(json.RawMessage(nil), a.Metadata...)
	}
	return a
}
