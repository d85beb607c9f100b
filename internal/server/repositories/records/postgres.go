// Package records provides the server's versioned record store over
// PostgreSQL and in memory.
package records

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/praylist/internal/common"
	"github.com/dmitrijs2005/praylist/internal/dbx"
	"github.com/dmitrijs2005/praylist/internal/server/models"
)

// PostgresRepository implements record storage over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Put upserts a record by (account, id). The update branch only fires when
// the incoming version is newer, so a stale write affects no rows and is
// reported as ErrVersionConflict.
func (r *PostgresRepository) Put(ctx context.Context, record *models.StoredRecord) error {
	query := `
		INSERT INTO records (account_id, id, cipher, iv, type, modified, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (account_id, id)
		DO UPDATE SET
			cipher = EXCLUDED.cipher,
			iv = EXCLUDED.iv,
			type = EXCLUDED.type,
			modified = EXCLUDED.modified,
			version = EXCLUDED.version
			WHERE records.version < EXCLUDED.version;
	`
	res, err := r.db.ExecContext(ctx, query,
		record.AccountID, record.ID, record.Cipher, record.IV, record.Type, record.Modified, record.Version)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	switch n {
	case 1:
		return nil
	case 0:
		return common.ErrVersionConflict
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}

func (r *PostgresRepository) Delete(ctx context.Context, accountID, id string) error {
	query := `DELETE FROM records WHERE account_id = $1 AND id = $2`
	if _, err := r.db.ExecContext(ctx, query, accountID, id); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// List returns every record of the account ordered by id.
func (r *PostgresRepository) List(ctx context.Context, accountID string) ([]*models.StoredRecord, error) {
	query := `
		SELECT id, cipher, iv, type, modified, version FROM records
		WHERE account_id = $1
		ORDER BY id
	`
	rows, err := r.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to select records: %w", err)
	}
	return scanRecords(rows, accountID)
}

func (r *PostgresRepository) ListByIDs(ctx context.Context, accountID string, ids []string) ([]*models.StoredRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	args := make([]any, 0, len(ids)+1)
	args = append(args, accountID)
	holders := make([]string, len(ids))
	for i, id := range ids {
		args = append(args, id)
		holders[i] = fmt.Sprintf("$%d", i+2)
	}

	query := `SELECT id, cipher, iv, type, modified, version FROM records
		WHERE account_id = $1 AND id IN (` + strings.Join(holders, ", ") + `)
		ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select records: %w", err)
	}
	return scanRecords(rows, accountID)
}

func scanRecords(rows *sql.Rows, accountID string) ([]*models.StoredRecord, error) {
	defer rows.Close()

	var result []*models.StoredRecord
	for rows.Next() {
		item := &models.StoredRecord{AccountID: accountID}
		if err := rows.Scan(&item.ID, &item.Cipher, &item.IV, &item.Type, &item.Modified, &item.Version); err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
