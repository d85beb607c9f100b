package subscriptions

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/dmitrijs2005/praylist/internal/common"
	"github.com/dmitrijs2005/praylist/internal/server/models"
)

type key struct{ account, id string }

type MemoryRepository struct {
	mu   sync.RWMutex
	subs map[key]models.Subscription
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{subs: make(map[key]models.Subscription)}
}

func (r *MemoryRepository) Get(_ context.Context, accountID, id string) (*models.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sub, ok := r.subs[key{accountID, id}]
	if !ok {
		return nil, common.ErrorNotFound
	}
	sub.Data = append(json.RawMessage(nil), sub.Data...)
	return &sub, nil
}

func (r *MemoryRepository) Put(_ context.Context, sub *models.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := *sub
	s.Data = append(json.RawMessage(nil), sub.Data...)
	r.subs[key{sub.AccountID, sub.ID}] = s
	return nil
}

func (r *MemoryRepository) Delete(_ context.Context, accountID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.subs, key{accountID, id})
	return nil
}
