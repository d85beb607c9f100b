package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/dmitrijs2005/praylist/internal/client/cache"
	"github.com/dmitrijs2005/praylist/internal/client/codec"
	"github.com/dmitrijs2005/praylist/internal/client/keys"
	"github.com/dmitrijs2005/praylist/internal/client/models"
	"github.com/dmitrijs2005/praylist/internal/client/mutation"
	"github.com/dmitrijs2005/praylist/internal/common"
	"github.com/dmitrijs2005/praylist/internal/logging"
	"github.com/dmitrijs2005/praylist/internal/merge"
	"github.com/dmitrijs2005/praylist/internal/wire"
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultReadMemoSize bounds how many earlier record reads are remembered
// as merge bases.
const DefaultReadMemoSize = 1024

type RecordService interface {
	// Sync brings the local cache up to date with the server.
	Sync(ctx context.Context) error
	List(ctx context.Context) ([]models.Record, error)
	Get(ctx context.Context, id string) (models.Record, error)
	Save(ctx context.Context, records ...models.Record) error
	// Delete removes the records and then drops them from every group that
	// lists them. A failure of the group update is a
	// *common.SecondaryWriteError; the deletion itself stays.
	Delete(ctx context.Context, ids ...string) error
	Metadata(ctx context.Context) (models.Metadata, error)
	SaveSettings(ctx context.Context, settings map[string]any) error
	Backup(ctx context.Context) (string, error)
}

type recordService struct {
	remote RecordRemote
	cache  *cache.Cache
	codec  *codec.Codec
	engine *mutation.Engine
	log    logging.Logger

	// reads holds the sealed form of every record version handed out,
	// keyed by readKey.
	reads *lru.Cache[string, wire.Item]

	records  *recordSlot
	deletion *deletionSlot
	meta     *metadataSlot
}

func NewRecordService(remote RecordRemote, c *cache.Cache, cd *codec.Codec, store keys.StateStore, engine *mutation.Engine, log logging.Logger) RecordService {
	reads, _ := lru.New[string, wire.Item](DefaultReadMemoSize)
	s := &recordService{
		remote: remote,
		cache:  c,
		codec:  cd,
		engine: engine,
		log:    log.With("module", "records"),
		reads:  reads,
	}
	s.records = &recordSlot{s: s, sealed: map[string]wire.Item{}}
	s.deletion = &deletionSlot{s: s}
	s.meta = newMetadataSlot(remote, cd, store, s.log)
	return s
}

func (s *recordService) Sync(ctx context.Context) error {
	if _, err := s.cache.Refresh(ctx); err != nil {
		return fmt.Errorf("sync error: %w", err)
	}
	return nil
}

func (s *recordService) List(ctx context.Context) ([]models.Record, error) {
	items, err := s.cache.Items(ctx)
	if err != nil {
		return nil, fmt.Errorf("error reading cache: %w", err)
	}
	return s.openAll(ctx, items)
}

func (s *recordService) Get(ctx context.Context, id string) (models.Record, error) {
	found, err := s.cache.Lookup(ctx, []string{id})
	if err != nil {
		return models.Record{}, fmt.Errorf("error reading cache: %w", err)
	}
	item, ok := found[id]
	if !ok {
		return models.Record{}, common.ErrorNotFound
	}
	return s.open(item)
}

func (s *recordService) Save(ctx context.Context, records ...models.Record) error {
	for _, r := range records {
		if err := r.Validate(); err != nil {
			return err
		}
	}
	return mutation.Execute[models.Record](ctx, s.engine, s.records, records)
}

func (s *recordService) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := mutation.Execute[string](ctx, s.engine, s.deletion, ids); err != nil {
		return err
	}

	gone := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		gone[id] = struct{}{}
	}

	all, err := s.List(ctx)
	if err != nil {
		return &common.SecondaryWriteError{Op: "delete", Err: err}
	}
	var groups []models.Record
	for _, r := range all {
		if r.Type != models.RecordTypeGroup {
			continue
		}
		if updated, changed := r.WithoutMembers(gone); changed {
			groups = append(groups, updated)
		}
	}
	if len(groups) == 0 {
		return nil
	}

	s.log.Debug(ctx, "removing deleted records from groups", "groups", len(groups))
	if err := mutation.Execute[models.Record](ctx, s.engine, s.records, groups); err != nil {
		return &common.SecondaryWriteError{Op: "delete", Err: err}
	}
	return nil
}

func (s *recordService) Backup(ctx context.Context) (string, error) {
	return s.remote.Backup(ctx)
}

// seal encrypts r into its stored form.
func (s *recordService) seal(r models.Record) (wire.Item, error) {
	env, err := s.codec.EncryptObject(r)
	if err != nil {
		return wire.Item{}, fmt.Errorf("encryption error: %w", err)
	}
	return wire.Item{
		ID:       r.ID,
		Cipher:   env.Cipher,
		IV:       env.IV,
		Type:     string(r.Type),
		Modified: time.Now().UnixMilli(),
		Version:  r.Version,
	}, nil
}

// open decrypts a stored record and remembers the read. The stored id and
// version win over the ones inside the payload.
func (s *recordService) open(it wire.Item) (models.Record, error) {
	var r models.Record
	if err := s.codec.DecryptObject(it.Envelope(), &r); err != nil {
		return models.Record{}, err
	}
	r.ID = it.ID
	r.Version = it.Version
	if r.Type == "" {
		r.Type = models.RecordType(it.Type)
	}
	if it.Version > 0 {
		s.reads.Add(readKey(it.ID, it.Version), it)
	}
	return r, nil
}

func readKey(id string, version int64) string {
	return id + "@" + strconv.FormatInt(version, 10)
}

// openAll skips records that fail to decrypt. A missing key is still an
// error.
func (s *recordService) openAll(ctx context.Context, items []wire.Item) ([]models.Record, error) {
	out := make([]models.Record, 0, len(items))
	for _, it := range items {
		r, err := s.open(it)
		if err != nil {
			if errors.Is(err, common.ErrNotInitialised) {
				return nil, err
			}
			s.log.Warn(ctx, "skipping undecryptable record", "id", it.ID, "error", err)
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *recordService) refresh(ctx context.Context) error {
	_, err := s.cache.Refresh(ctx)
	if errors.Is(err, cache.ErrRefreshCancelled) {
		return nil
	}
	return err
}

// upsert replaces items with the same id in place and appends the rest.
func upsert(current, changed []wire.Item) []wire.Item {
	out := slices.Clone(current)
	index := make(map[string]int, len(out))
	for i, it := range out {
		index[it.ID] = i
	}
	for _, it := range changed {
		if i, ok := index[it.ID]; ok {
			out[i] = it
			continue
		}
		index[it.ID] = len(out)
		out = append(out, it)
	}
	return out
}

// recordSlot is the record set as seen by the mutation engine.
type recordSlot struct {
	s *recordService

	// sealed carries what Apply wrote locally over to Save, so the server
	// and the cache get the same ciphertext.
	mu     sync.Mutex
	sealed map[string]wire.Item
}

func (rs *recordSlot) Name() string { return "records" }
func (rs *recordSlot) Key(r models.Record) string { return r.ID }
func (rs *recordSlot) Version(r models.Record) int64 { return r.Version }

func (rs *recordSlot) WithVersion(r models.Record, v int64) models.Record {
	r.Version = v
	return r
}

func (rs *recordSlot) Base(ctx context.Context, ids []string) (map[string]models.Record, error) {
	found, err := rs.s.cache.Lookup(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[string]models.Record, len(found))
	for id, it := range found {
		r, err := rs.s.open(it)
		if err != nil {
			if errors.Is(err, common.ErrNotInitialised) {
				return nil, err
			}
			// unreadable local copy; its version still counts
			rs.s.log.Warn(ctx, "cached record unreadable", "id", id, "error", err)
			r = models.Record{ID: id, Version: it.Version}
		}
		out[id] = r
	}
	return out, nil
}

func (rs *recordSlot) CancelRefresh() { rs.s.cache.CancelRefresh() }

func (rs *recordSlot) Snapshot(ctx context.Context) (any, error) {
	return rs.s.cache.Snapshot(ctx)
}

func (rs *recordSlot) Restore(ctx context.Context, snapshot any) error {
	rs.mu.Lock()
	clear(rs.sealed)
	rs.mu.Unlock()

	snap, _ := snapshot.(cache.Snapshot)
	return rs.s.cache.Restore(ctx, snap)
}

func (rs *recordSlot) ReadAt(id string, version int64) (models.Record, bool) {
	it, ok := rs.s.reads.Get(readKey(id, version))
	if !ok {
		return models.Record{}, false
	}
	r, err := rs.s.open(it)
	return r, err == nil
}

func (rs *recordSlot) sealAll(records []models.Record) ([]wire.Item, error) {
	items := make([]wire.Item, 0, len(records))
	for _, r := range records {
		it, err := rs.s.seal(r)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, nil
}

func (rs *recordSlot) Apply(ctx context.Context, records []models.Record) error {
	items, err := rs.sealAll(records)
	if err != nil {
		return err
	}

	rs.mu.Lock()
	for _, it := range items {
		rs.sealed[readKey(it.ID, it.Version)] = it
	}
	rs.mu.Unlock()

	current, err := rs.s.cache.Items(ctx)
	if err != nil {
		return err
	}
	return rs.s.cache.Replace(ctx, upsert(current, items))
}

// Save sends the items Apply sealed for records, sealing any it did not.
func (rs *recordSlot) Save(ctx context.Context, records []models.Record) error {
	items := make([]wire.Item, 0, len(records))
	var missing []models.Record

	rs.mu.Lock()
	for _, r := range records {
		k := readKey(r.ID, r.Version)
		if it, ok := rs.sealed[k]; ok {
			delete(rs.sealed, k)
			items = append(items, it)
			continue
		}
		missing = append(missing, r)
	}
	rs.mu.Unlock()

	fresh, err := rs.sealAll(missing)
	if err != nil {
		return err
	}
	return rs.s.remote.PutMany(ctx, append(items, fresh...))
}

func (rs *recordSlot) Fetch(ctx context.Context, ids []string) (map[string]models.Record, error) {
	items, err := rs.s.remote.FetchByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[string]models.Record, len(items))
	for _, it := range items {
		if it.Partial() {
			continue
		}
		r, err := rs.s.open(it)
		if err != nil {
			return nil, err
		}
		out[it.ID] = r
	}
	return out, nil
}

func (rs *recordSlot) Merge(base, theirs, yours models.Record) (models.Record, error) {
	return merge.Records(base, theirs, yours)
}

func (rs *recordSlot) Refresh(ctx context.Context) error { return rs.s.refresh(ctx) }

// deletionSlot removes records by id. Deletes are unversioned, so it has
// no merge path.
type deletionSlot struct {
	s *recordService
}

func (ds *deletionSlot) Name() string { return "deletion" }
func (ds *deletionSlot) Key(id string) string { return id }
func (ds *deletionSlot) Version(string) int64 { return 0 }
func (ds *deletionSlot) WithVersion(id string, _ int64) string { return id }
func (ds *deletionSlot) CancelRefresh() { ds.s.cache.CancelRefresh() }

func (ds *deletionSlot) Base(context.Context, []string) (map[string]string, error) {
	return nil, nil
}

func (ds *deletionSlot) Snapshot(ctx context.Context) (any, error) {
	return ds.s.cache.Snapshot(ctx)
}

func (ds *deletionSlot) Restore(ctx context.Context, snapshot any) error {
	snap, _ := snapshot.(cache.Snapshot)
	return ds.s.cache.Restore(ctx, snap)
}

func (ds *deletionSlot) Apply(ctx context.Context, ids []string) error {
	current, err := ds.s.cache.Items(ctx)
	if err != nil {
		return err
	}
	kept := slices.DeleteFunc(current, func(it wire.Item) bool {
		return slices.Contains(ids, it.ID)
	})
	return ds.s.cache.Replace(ctx, kept)
}

func (ds *deletionSlot) Save(ctx context.Context, ids []string) error {
	return ds.s.remote.DeleteMany(ctx, ids)
}

func (ds *deletionSlot) Fetch(context.Context, []string) (map[string]string, error) {
	return nil, nil
}

func (ds *deletionSlot) Refresh(ctx context.Context) error { return ds.s.refresh(ctx) }
