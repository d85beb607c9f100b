// Package subscriptions stores the opaque per-account push subscription
// blobs.
package subscriptions

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/praylist/internal/common"
	"github.com/dmitrijs2005/praylist/internal/dbx"
	"github.com/dmitrijs2005/praylist/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Get(ctx context.Context, accountID, id string) (*models.Subscription, error) {
	query := `
		SELECT data, modified FROM subscriptions
		WHERE account_id = $1 AND id = $2
	`
	sub := &models.Subscription{AccountID: accountID, ID: id}
	var data []byte
	if err := r.db.QueryRowContext(ctx, query, accountID, id).Scan(&data, &sub.Modified); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	sub.Data = json.RawMessage(data)
	return sub, nil
}

// Put stores the blob, replacing any previous one under the same id.
func (r *PostgresRepository) Put(ctx context.Context, sub *models.Subscription) error {
	query := `
		INSERT INTO subscriptions (account_id, id, data, modified)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (account_id, id)
		DO UPDATE SET data = EXCLUDED.data, modified = EXCLUDED.modified
	`
	if _, err := r.db.ExecContext(ctx, query, sub.AccountID, sub.ID, []byte(sub.Data), sub.Modified); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, accountID, id string) error {
	query := `DELETE FROM subscriptions WHERE account_id = $1 AND id = $2`
	if _, err := r.db.ExecContext(ctx, query, accountID, id); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
