package services

import (
	"context"

	"github.com/dmitrijs2005/praylist/internal/common"
	"github.com/dmitrijs2005/praylist/internal/wire"
)

// RecordRemote is the part of the HTTP client the record services use.
type RecordRemote interface {
	FetchSince(ctx context.Context, since *int64) ([]wire.Item, int64, error)
	FetchByIDs(ctx context.Context, ids []string) ([]wire.Item, error)
	PutMany(ctx context.Context, items []wire.Item) error
	DeleteMany(ctx context.Context, ids []string) error
	SetMetadata(ctx context.Context, metadata []byte, version int64) error
	GetMetadata(ctx context.Context) ([]byte, int64, error)
	Backup(ctx context.Context) (string, error)
}

// AuthRemote is the part of the HTTP client the auth service uses.
type AuthRemote interface {
	CreateAccount(ctx context.Context, salt []byte, fingerprint string) (string, error)
	GetSalt(ctx context.Context, account string) ([]byte, error)
	Login(ctx context.Context, account, fingerprint string) (string, error)
	OnSessionExpired(fn func(ctx context.Context, err *common.SessionExpiredError))
	Ping(ctx context.Context) error
}
