package records

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/praylist/internal/dbx"
	"github.com/dmitrijs2005/praylist/internal/wire"
)

// SQLiteRepository implements Repository on the records table.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) ReplaceAll(ctx context.Context, items []wire.Item) error {
	err := dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM records`); err != nil {
			return err
		}
		for pos, it := range items {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO records (id, position, cipher, iv, type, modified, version)
				VALUES (?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET position = excluded.position,
					cipher = excluded.cipher, iv = excluded.iv, type = excluded.type,
					modified = excluded.modified, version = excluded.version`,
				it.ID, pos, it.Cipher, it.IV, it.Type, it.Modified, it.Version)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to replace records: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) All(ctx context.Context) ([]wire.Item, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, cipher, iv, type, modified, version FROM records ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("failed to select records: %w", err)
	}
	defer rows.Close()

	var out []wire.Item
	for rows.Next() {
		var it wire.Item
		if err := rows.Scan(&it.ID, &it.Cipher, &it.IV, &it.Type, &it.Modified, &it.Version); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		out = append(out, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate records: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM records`); err != nil {
		return fmt.Errorf("failed to clear records: %w", err)
	}
	return nil
}
