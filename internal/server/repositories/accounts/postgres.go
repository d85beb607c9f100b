// Package accounts provides PostgreSQL and in-memory repositories for
// server-side accounts.
package accounts

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

// PostgresRepository implements Repository over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, account *models.Account) error {
	query :=
		`INSERT INTO accounts (id, salt, auth_hash)
		 VALUES ($1, $2, $3)
		 RETURNING created_at
		 `

	err := r.db.QueryRowContext(ctx, query,
		account.ID, account.Salt, account.AuthHash).Scan(&account.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.Account, error) {
	query :=
		`SELECT id, salt, auth_hash, metadata, metadata_version, created_at FROM accounts
		 WHERE id = $1
		 `

	a := &models.Account{}
	var metadata []byte
	err := r.db.QueryRowContext(ctx, query, id).
		Scan(&a.ID, &a.Salt, &a.AuthHash, &metadata, &a.MetadataVersion, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if len(metadata) > 0 {
		a.Metadata = json.RawMessage(metadata)
	}
	return a, nil
}

func (r *PostgresRepository) UpdateMetadata(ctx context.Context, id string, metadata json.RawMessage, version int64) error {
	query :=
		`UPDATE accounts SET metadata = $2, metadata_version = $3
		 WHERE id = $1 AND metadata_version < $3
		 `

	res, err := r.db.ExecContext(ctx, query, id, []byte(metadata), version)
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
