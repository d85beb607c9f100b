// Package cache keeps the local snapshot of the account's encrypted records
// and brings it up to date with incremental fetches.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/dmitrijs2005/praylist/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/praylist/internal/client/repositories/records"
	"github.com/dmitrijs2005/praylist/internal/logging"
	"github.com/dmitrijs2005/praylist/internal/wire"
)

const (
	StateLastAccount    = "last_account"
	StateCacheTimestamp = "cache_timestamp"
)

// ErrRefreshCancelled is returned by a Refresh that was superseded or
// cancelled before it could persist.
var ErrRefreshCancelled = errors.New("refresh cancelled")

// Remote is the part of the remote store client the cache needs.
type Remote interface {
	FetchSince(ctx context.Context, since *int64) ([]wire.Item, int64, error)
	FetchByIDs(ctx context.Context, ids []string) ([]wire.Item, error)
}

// Cache is bound to one account at a time (see EnsureAccount).
type Cache struct {
	meta   metadata.Repository
	recs   records.Repository
	remote Remote
	log    logging.Logger

	// mu serialises snapshot writes with refresh cancellation.
	mu     sync.Mutex
	cancel context.CancelFunc
	seq    uint64
	// epoch counts Clear calls; a snapshot from an older epoch is stale.
	epoch uint64
}

// Snapshot is a point-in-time copy of the cached records.
type Snapshot struct {
	items []wire.Item
	epoch uint64
}

func New(meta metadata.Repository, recs records.Repository, remote Remote, log logging.Logger) *Cache {
	return &Cache{meta: meta, recs: recs, remote: remote, log: log.With("module", "cache")}
}

// EnsureAccount clears the snapshot when it belongs to a different account
// and records account as the owner. Call it before any fetch.
func (c *Cache) EnsureAccount(ctx context.Context, account string) error {
	last, err := c.meta.Get(ctx, StateLastAccount)
	if err != nil {
		return err
	}
	if string(last) == account {
		return nil
	}
	if len(last) > 0 {
		c.log.Info(ctx, "account changed, clearing cache", "from", string(last), "to", account)
	}
	if err := c.Clear(ctx); err != nil {
		return err
	}
	return c.meta.Set(ctx, StateLastAccount, []byte(account))
}

// Items returns the cached snapshot.
func (c *Cache) Items(ctx context.Context) ([]wire.Item, error) {
	return c.recs.All(ctx)
}

// Lookup returns the cached items for ids, keyed by id.
func (c *Cache) Lookup(ctx context.Context, ids []string) (map[string]wire.Item, error) {
	all, err := c.recs.All(ctx)
	if err != nil {
		return nil, err
	}
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	out := make(map[string]wire.Item, len(ids))
	for _, it := range all {
		if _, ok := want[it.ID]; ok {
			out[it.ID] = it
		}
	}
	return out, nil
}

// Replace overwrites the snapshot without touching the cache timestamp.
func (c *Cache) Replace(ctx context.Context, items []wire.Item) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recs.ReplaceAll(ctx, items)
}

// Snapshot copies the cached records for a later Restore.
func (c *Cache) Snapshot(ctx context.Context) (Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	items, err := c.recs.All(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{items: items, epoch: c.epoch}, nil
}

// Restore puts a snapshot back. A snapshot taken before the last Clear is
// dropped, so a sign-out is never undone.
func (c *Cache) Restore(ctx context.Context, s Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s.epoch != c.epoch {
		c.log.Debug(ctx, "dropping stale snapshot")
		return nil
	}
	return c.recs.ReplaceAll(ctx, s.items)
}

// Clear drops the snapshot and the cache timestamp.
func (c *Cache) Clear(ctx context.Context) error {
	c.CancelRefresh()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch++
	if err := c.recs.Clear(ctx); err != nil {
		return err
	}
	return c.meta.Delete(ctx, StateCacheTimestamp)
}

// CancelRefresh aborts the refresh in flight, if any. Once it returns, that
// refresh can no longer persist.
func (c *Cache) CancelRefresh() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.seq++
}

func (c *Cache) timestamp(ctx context.Context) (*int64, error) {
	raw, err := c.meta.Get(ctx, StateCacheTimestamp)
	if err != nil || len(raw) == 0 {
		return nil, err
	}
	ts, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		c.log.Warn(ctx, "ignoring corrupt cache timestamp", "value", string(raw))
		return nil, nil
	}
	return &ts, nil
}

// Refresh fetches what changed since the last refresh, fills unchanged
// records from the snapshot and persists the result with the new server
// timestamp. Records reported unchanged but missing locally are fetched
// again by id in a single call.
func (c *Cache) Refresh(ctx context.Context) ([]wire.Item, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.cancel = cancel
	c.seq++
	seq := c.seq
	c.mu.Unlock()

	cached, err := c.recs.All(ctx)
	if err != nil {
		return nil, err
	}
	since, err := c.timestamp(ctx)
	if err != nil {
		return nil, err
	}
	if len(cached) == 0 {
		since = nil
	}

	fetched, serverTS, err := c.remote.FetchSince(ctx, since)
	if err != nil {
		return nil, c.cancelled(ctx, err)
	}

	merged, err := c.fill(ctx, fetched, cached)
	if err != nil {
		return nil, c.cancelled(ctx, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if ctx.Err() != nil || seq != c.seq {
		return nil, ErrRefreshCancelled
	}
	c.cancel = nil

	if err := c.recs.ReplaceAll(ctx, merged); err != nil {
		return nil, err
	}
	if err := c.meta.Set(ctx, StateCacheTimestamp, []byte(strconv.FormatInt(serverTS, 10))); err != nil {
		return nil, err
	}

	c.log.Debug(ctx, "cache refreshed", "items", len(merged), "timestamp", serverTS)
	return merged, nil
}

func (c *Cache) cancelled(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ErrRefreshCancelled
	}
	return err
}

func (c *Cache) fill(ctx context.Context, fetched, cached []wire.Item) ([]wire.Item, error) {
	local := make(map[string]wire.Item, len(cached))
	for _, it := range cached {
		local[it.ID] = it
	}

	out := make([]wire.Item, len(fetched))
	var missing []string
	for i, it := range fetched {
		if !it.Partial() {
			out[i] = it
			continue
		}
		if have, ok := local[it.ID]; ok {
			out[i] = have
			continue
		}
		missing = append(missing, it.ID)
		out[i] = it
	}

	if len(missing) == 0 {
		return out, nil
	}

	c.log.Warn(ctx, "unchanged records missing from cache, refetching", "count", len(missing))
	refetched, err := c.remote.FetchByIDs(ctx, missing)
	if err != nil {
		return nil, fmt.Errorf("refetch missing records: %w", err)
	}
	byID := make(map[string]wire.Item, len(refetched))
	for _, it := range refetched {
		byID[it.ID] = it
	}

	// records deleted between the two calls are dropped
	result := out[:0]
	for _, it := range out {
		if it.Partial() {
			full, ok := byID[it.ID]
			if !ok || full.Partial() {
				continue
			}
			it = full
		}
		result = append(result, it)
	}
	return result, nil
}
