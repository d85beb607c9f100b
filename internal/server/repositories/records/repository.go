package records

import (
	"context"

	"github.com/dmitrijs2005/praylist/internal/server/models"
)

// Repository is the versioned record store of one deployment.
type Repository interface {
	// Put creates or replaces the record only if the stored version is
	// strictly lower than record.Version. Otherwise nothing is written and
	// common.ErrVersionConflict is returned.
	Put(ctx context.Context, record *models.StoredRecord) error
	// Delete removes the record. Deleting an absent id is not an error.
	Delete(ctx context.Context, accountID, id string) error
	List(ctx context.Context, accountID string) ([]*models.StoredRecord, error)
	// ListByIDs returns the records among ids that exist.
	ListByIDs(ctx context.Context, accountID string, ids []string) ([]*models.StoredRecord, error)
}
