// Package repositories opens the client's local state database and vends
// the metadata and records repositories on top of it.
package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrijs2005/praylist/internal/client/migrations"
	"github.com/dmitrijs2005/praylist/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/praylist/internal/client/repositories/records"
	"github.com/dmitrijs2005/praylist/internal/filex"
	"github.com/pressly/goose/v3"
	bolt "go.etcd.io/bbolt"

	_ "modernc.org/sqlite"
)

const (
	DriverSQLite = "sqlite"
	DriverBolt   = "bolt"
)

// Repositories bundles the local stores. Close releases the database.
type Repositories struct {
	Metadata metadata.Repository
	Records  records.Repository

	close func() error
}

func (r *Repositories) Close() error {
	if r.close == nil {
		return nil
	}
	return r.close()
}

// gooseUp is replaced in tests.
var gooseUp = goose.UpContext

// RunMigrations applies the embedded schema to an SQLite database.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	if err := gooseUp(ctx, db, "."); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// Open opens the local database at path with the given driver. For sqlite,
// path is a DSN, so ":memory:" works.
func Open(ctx context.Context, driver, path string) (*Repositories, error) {
	switch driver {
	case DriverSQLite, "":
		return openSQLite(ctx, path)
	case DriverBolt:
		return openBolt(path)
	default:
		return nil, fmt.Errorf("unknown cache driver %q", driver)
	}
}

func openSQLite(ctx context.Context, dsn string) (*Repositories, error) {
	if dsn != ":memory:" {
		if err := filex.EnsureParentDir(dsn); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// one connection keeps ":memory:" a single database
	db.SetMaxOpenConns(1)

	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Repositories{
		Metadata: metadata.NewSQLiteRepository(db),
		Records:  records.NewSQLiteRepository(db),
		close:    db.Close,
	}, nil
}

func openBolt(path string) (*Repositories, error) {
	if err := filex.EnsureParentDir(path); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return &Repositories{
		Metadata: metadata.NewBoltRepository(db),
		Records:  records.NewBoltRepository(db),
		close:    db.Close,
	}, nil
}
