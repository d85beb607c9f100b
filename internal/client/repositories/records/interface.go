// Package records persists the local snapshot of the account's encrypted
// records. Entries are kept in the order they were last written.
package records

import (
	"context"

	"github.com/dmitrijs2005/praylist/internal/wire"
)

type Repository interface {
	// ReplaceAll atomically swaps the snapshot for items.
	ReplaceAll(ctx context.Context, items []wire.Item) error
	// All returns the snapshot in stored order.
	All(ctx context.Context) ([]wire.Item, error)
	Clear(ctx context.Context) error
}
