package accounts

import (
	"context"
	"encoding/json"

	"github.com/dmitrijs2005/praylist/internal/server/models"
)

// Repository persists accounts and their versioned metadata blob.
type Repository interface {
	Create(ctx context.Context, account *models.Account) error
	// Get returns common.ErrorNotFound for an unknown id.
	Get(ctx context.Context, id string) (*models.Account, error)
	// UpdateMetadata stores metadata only if version is strictly greater
	// than the stored one, otherwise it returns common.ErrVersionConflict.
	UpdateMetadata(ctx context.Context, id string, metadata json.RawMessage, version int64) error
}
