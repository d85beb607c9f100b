package sessions

import (
	"context"
	"time"

	"github.com/dmitrijs2005/praylist/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, session *models.Session) error
	// Get returns common.ErrorNotFound for an unknown id.
	Get(ctx context.Context, id string) (*models.Session, error)
	// DeleteExpired removes the account's sessions that expired before now
	// and reports how many were removed.
	DeleteExpired(ctx context.Context, accountID string, now time.Time) (int64, error)
}
