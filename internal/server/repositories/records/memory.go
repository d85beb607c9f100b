package records

import (
	"context"
	"sort"
	"sync"

	"github.com/dmitrijs2005/praylist/internal/common"
	"github.com/dmitrijs2005/praylist/internal/server/models"
)

// MemoryRepository is the in-process versioned store. Each Put is atomic
// under the write lock.
type MemoryRepository struct {
	mu       sync.RWMutex
	accounts map[string]map[string]models.StoredRecord
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{accounts: make(map[string]map[string]models.StoredRecord)}
}

func (r *MemoryRepository) Put(_ context.Context, record *models.StoredRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	part, ok := r.accounts[record.AccountID]
	if !ok {
		part = make(map[string]models.StoredRecord)
		r.accounts[record.AccountID] = part
	}
	if cur, ok := part[record.ID]; ok && cur.Version >= record.Version {
		return common.ErrVersionConflict
	}
	part[record.ID] = *record
	return nil
}

func (r *MemoryRepository) Delete(_ context.Context, accountID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.accounts[accountID], id)
	return nil
}

func (r *MemoryRepository) List(_ context.Context, accountID string) ([]*models.StoredRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	part := r.accounts[accountID]
	out := make([]*models.StoredRecord, 0, len(part))
	for _, rec := range part {
		out = append(out, &rec)
	}
	sortByID(out)
	return out, nil
}

func (r *MemoryRepository) ListByIDs(_ context.Context, accountID string, ids []string) ([]*models.StoredRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	part := r.accounts[accountID]
	out := make([]*models.StoredRecord, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if rec, ok := part[id]; ok {
			out = append(out, &rec)
		}
	}
	sortByID(out)
	return out, nil
}

func sortByID(recs []*models.StoredRecord) {
	sort.Slice(recs, func(i, j int) bool { return recs[i].ID < recs[j].ID })
}
