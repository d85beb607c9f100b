package subscriptions

import (
	"context"

	"github.com/dmitrijs2005/praylist/internal/server/models"
)

type Repository interface {
	// Get returns common.ErrorNotFound when nothing is stored under id.
	Get(ctx context.Context, accountID, id string) (*models.Subscription, error)
	Put(ctx context.Context, sub *models.Subscription) error
	Delete(ctx context.Context, accountID, id string) error
}
