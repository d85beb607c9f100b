package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/dmitrijs2005/praylist/internal/common"
	"github.com/dmitrijs2005/praylist/internal/logging"
	"github.com/dmitrijs2005/praylist/internal/server/config"
	"github.com/dmitrijs2005/praylist/internal/server/models"
	"github.com/dmitrijs2005/praylist/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/praylist/internal/wire"
)

// SafetyWindow is subtracted from the fetch timestamp so writes that land
// while a fetch is running are still reported on the next one.
const SafetyWindow = 5 * time.Second

// RecordService is the versioned store as seen by the API: encrypted
// records, the account metadata blob and push subscriptions.
type RecordService interface {
	// Fetch returns every record of the account. Records not modified after
	// since come back with only their id. The returned timestamp is what
	// the client passes as since next time.
	Fetch(ctx context.Context, account string, since *int64) ([]wire.Item, int64, error)
	FetchByIDs(ctx context.Context, account string, ids []string) ([]wire.Item, int64, error)
	// Put writes one record if its version is newer than the stored one.
	Put(ctx context.Context, account string, item wire.Item) error
	// PutMany applies Put to each item independently; the result is aligned
	// with items and holds nil for every success.
	PutMany(ctx context.Context, account string, items []wire.Item) []error
	Delete(ctx context.Context, account, id string) error
	DeleteMany(ctx context.Context, account string, ids []string) []error

	GetMetadata(ctx context.Context, account string) (json.RawMessage, int64, error)
	SetMetadata(ctx context.Context, account string, metadata json.RawMessage, version int64) error

	GetSubscription(ctx context.Context, account, id string) (json.RawMessage, error)
	PutSubscription(ctx context.Context, account, id string, data json.RawMessage) error
	DeleteSubscription(ctx context.Context, account, id string) error
}

type recordService struct {
	repos       repomanager.RepositoryManager
	maxItemSize int
	log         logging.Logger
	now         func() time.Time
}

func NewRecordService(m repomanager.RepositoryManager, cfg *config.Config, log logging.Logger) RecordService {
	limit := cfg.MaxItemSize
	if limit <= 0 {
		limit = common.MaxItemSize
	}
	return &recordService{
		repos:       m,
		maxItemSize: limit,
		log:         log.With("module", "records"),
		now:         time.Now,
	}
}

func (s *recordService) Fetch(ctx context.Context, account string, since *int64) ([]wire.Item, int64, error) {
	// taken before the read so concurrent writes are never skipped
	timestamp := s.now().Add(-SafetyWindow).UnixMilli()

	recs, err := s.repos.Records(s.repos.Conn()).List(ctx, account)
	if err != nil {
		s.log.Error(ctx, "failed to list records", "account", account, "error", err)
		return nil, 0, common.ErrorInternal
	}

	items := make([]wire.Item, 0, len(recs))
	for _, r := range recs {
		if since != nil && r.Modified.UnixMilli() <= *since {
			items = append(items, wire.Item{ID: r.ID})
			continue
		}
		items = append(items, toItem(r))
	}
	return items, timestamp, nil
}

func (s *recordService) FetchByIDs(ctx context.Context, account string, ids []string) ([]wire.Item, int64, error) {
	timestamp := s.now().Add(-SafetyWindow).UnixMilli()

	recs, err := s.repos.Records(s.repos.Conn()).ListByIDs(ctx, account, ids)
	if err != nil {
		s.log.Error(ctx, "failed to load records", "account", account, "error", err)
		return nil, 0, common.ErrorInternal
	}

	items := make([]wire.Item, 0, len(recs))
	for _, r := range recs {
		items = append(items, toItem(r))
	}
	return items, timestamp, nil
}

func (s *recordService) Put(ctx context.Context, account string, item wire.Item) error {
	if err := s.validate(item); err != nil {
		return err
	}

	rec := &models.StoredRecord{
		AccountID: account,
		ID:        item.ID,
		Cipher:    item.Cipher,
		IV:        item.IV,
		Type:      item.Type,
		Modified:  s.now(),
		Version:   item.Version,
	}
	if err := s.repos.Records(s.repos.Conn()).Put(ctx, rec); err != nil {
		if errors.Is(err, common.ErrVersionConflict) {
			s.log.Debug(ctx, "stale write rejected", "account", account, "id", item.ID, "version", item.Version)
			return err
		}
		s.log.Error(ctx, "failed to store record", "account", account, "id", item.ID, "error", err)
		return common.ErrorInternal
	}
	return nil
}

func (s *recordService) PutMany(ctx context.Context, account string, items []wire.Item) []error {
	out := make([]error, len(items))
	for i, item := range items {
		out[i] = s.Put(ctx, account, item)
	}
	return out
}

func (s *recordService) Delete(ctx context.Context, account, id string) error {
	if id == "" {
		return &common.ValidationError{Field: "id", Reason: "is required"}
	}
	if err := s.repos.Records(s.repos.Conn()).Delete(ctx, account, id); err != nil {
		s.log.Error(ctx, "failed to delete record", "account", account, "id", id, "error", err)
		return common.ErrorInternal
	}
	return nil
}

func (s *recordService) DeleteMany(ctx context.Context, account string, ids []string) []error {
	out := make([]error, len(ids))
	for i, id := range ids {
		out[i] = s.Delete(ctx, account, id)
	}
	return out
}

func (s *recordService) GetMetadata(ctx context.Context, account string) (json.RawMessage, int64, error) {
	a, err := s.repos.Accounts(s.repos.Conn()).Get(ctx, account)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, 0, err
		}
		s.log.Error(ctx, "failed to load metadata", "account", account, "error", err)
		return nil, 0, common.ErrorInternal
	}
	return a.Metadata, a.MetadataVersion, nil
}

func (s *recordService) SetMetadata(ctx context.Context, account string, metadata json.RawMessage, version int64) error {
	switch {
	case version < 1:
		return &common.ValidationError{Field: "version", Reason: "must be positive"}
	case len(metadata) == 0 || !json.Valid(metadata):
		return &common.ValidationError{Field: "metadata", Reason: "must be a JSON value"}
	case len(metadata) > s.maxItemSize:
		return common.ErrSizeLimit
	}

	err := s.repos.Accounts(s.repos.Conn()).UpdateMetadata(ctx, account, metadata, version)
	if err != nil {
		if errors.Is(err, common.ErrVersionConflict) {
			return err
		}
		s.log.Error(ctx, "failed to store metadata", "account", account, "error", err)
		return common.ErrorInternal
	}
	return nil
}

func (s *recordService) GetSubscription(ctx context.Context, account, id string) (json.RawMessage, error) {
	sub, err := s.repos.Subscriptions(s.repos.Conn()).Get(ctx, account, id)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, err
		}
		s.log.Error(ctx, "failed to load subscription", "account", account, "error", err)
		return nil, common.ErrorInternal
	}
	return sub.Data, nil
}

func (s *recordService) PutSubscription(ctx context.Context, account, id string, data json.RawMessage) error {
	switch {
	case id == "":
		return &common.ValidationError{Field: "id", Reason: "is required"}
	case len(data) == 0 || !json.Valid(data):
		return &common.ValidationError{Field: "subscription", Reason: "must be a JSON value"}
	case len(data) > s.maxItemSize:
		return common.ErrSizeLimit
	}

	sub := &models.Subscription{AccountID: account, ID: id, Data: data, Modified: s.now()}
	if err := s.repos.Subscriptions(s.repos.Conn()).Put(ctx, sub); err != nil {
		s.log.Error(ctx, "failed to store subscription", "account", account, "error", err)
		return common.ErrorInternal
	}
	return nil
}

func (s *recordService) DeleteSubscription(ctx context.Context, account, id string) error {
	if err := s.repos.Subscriptions(s.repos.Conn()).Delete(ctx, account, id); err != nil {
		s.log.Error(ctx, "failed to delete subscription", "account", account, "error", err)
		return common.ErrorInternal
	}
	return nil
}

func (s *recordService) validate(item wire.Item) error {
	switch {
	case item.ID == "":
		return &common.ValidationError{Field: "id", Reason: "is required"}
	case item.Version < 1:
		return &common.ValidationError{Field: "version", Reason: "must be positive"}
	case item.Cipher == "" || item.IV == "":
		return &common.ValidationError{Field: "cipher", Reason: "must be an encrypted envelope"}
	}

	// size is measured on the stored form, without the server-assigned field
	item.Modified = 0
	raw, err := json.Marshal(item)
	if err != nil {
		return err
	}
	if len(raw) > s.maxItemSize {
		return common.ErrSizeLimit
	}
	return nil
}

func toItem(r *models.StoredRecord) wire.Item {
	return wire.Item{
		ID:       r.ID,
		Cipher:   r.Cipher,
		IV:       r.IV,
		Type:     r.Type,
		Modified: r.Modified.UnixMilli(),
		Version:  r.Version,
	}
}
