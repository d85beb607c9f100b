package sessions

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/praylist/internal/common"
	"github.com/dmitrijs2005/praylist/internal/server/models"
)

type MemoryRepository struct {
	mu       sync.RWMutex
	sessions map[string]models.Session
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{sessions: make(map[string]models.Session)}
}

func (r *MemoryRepository) Create(_ context.Context, session *models.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[session.ID]; ok {
		return fmt.Errorf("db error: session %s already exists", session.ID)
	}
	session.CreatedAt = time.Now()
	s := *session
	s.TokenHash = append([]byte(nil), session.TokenHash...)
	r.sessions[s.ID] = s
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, id string) (*models.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	s.TokenHash = append([]byte(nil), s.TokenHash...)
	return &s, nil
}

func (r *MemoryRepository) DeleteExpired(_ context.Context, accountID string, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for id, s := range r.sessions {
		if s.AccountID == accountID && s.Expired(now) {
			delete(r.sessions, id)
			n++
		}
	}
	return n, nil
}
