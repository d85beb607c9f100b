package services

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/praylist/internal/common"
	"github.com/dmitrijs2005/praylist/internal/logging"
	"github.com/dmitrijs2005/praylist/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/praylist/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newRecords(t *testing.T) (*recordService, *clock) {
	t.Helper()
	c := &clock{t: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	svc := NewRecordService(repomanager.NewMemoryRepositoryManager(), testConfig(), logging.Discard()).(*recordService)
	svc.now = c.now
	return svc, c
}

func item(id string, version int64) wire.Item {
	return wire.Item{ID: id, Cipher: "cipher-" + id, IV: "iv", Type: "person", Version: version}
}

func TestRecordService_FetchProjection(t *testing.T) {
	ctx := context.Background()
	svc, c := newRecords(t)

	require.NoError(t, svc.Put(ctx, "acc", item("old", 1)))
	since := c.t.UnixMilli()

	c.t = c.t.Add(time.Minute)
	written := c.t
	require.NoError(t, svc.Put(ctx, "acc", item("new", 1)))

	c.t = c.t.Add(time.Minute)
	items, ts, err := svc.Fetch(ctx, "acc", &since)
	require.NoError(t, err)
	assert.Equal(t, c.t.Add(-SafetyWindow).UnixMilli(), ts)

	require.Len(t, items, 2)
	byID := map[string]wire.Item{}
	for _, it := range items {
		byID[it.ID] = it
	}
	assert.True(t, byID["old"].Partial(), "unchanged record is id only")
	assert.False(t, byID["new"].Partial())
	assert.Equal(t, "cipher-new", byID["new"].Cipher)
	assert.Equal(t, int64(1), byID["new"].Version)
	assert.Equal(t, written.UnixMilli(), byID["new"].Modified)

	all, _, err := svc.Fetch(ctx, "acc", nil)
	require.NoError(t, err)
	for _, it := range all {
		assert.False(t, it.Partial())
	}
}

func TestRecordService_FetchIsolatesAccounts(t *testing.T) {
	ctx := context.Background()
	svc, _ := newRecords(t)

	require.NoError(t, svc.Put(ctx, "a", item("x", 1)))

	items, _, err := svc.Fetch(ctx, "b", nil)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestRecordService_VersionEnforcement(t *testing.T) {
	ctx := context.Background()
	svc, _ := newRecords(t)

	require.NoError(t, svc.Put(ctx, "acc", item("r", 1)))
	assert.ErrorIs(t, svc.Put(ctx, "acc", item("r", 1)), common.ErrVersionConflict)
	assert.ErrorIs(t, svc.Put(ctx, "acc", item("r", 0)), common.ErrValidation)
	require.NoError(t, svc.Put(ctx, "acc", item("r", 2)))

	got, _, err := svc.FetchByIDs(ctx, "acc", []string{"r"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(2), got[0].Version)
}

func TestRecordService_PutValidation(t *testing.T) {
	svc, _ := newRecords(t)

	for name, it := range map[string]wire.Item{
		"no id":      {Cipher: "c", IV: "i", Version: 1},
		"no cipher":  {ID: "x", IV: "i", Version: 1},
		"no iv":      {ID: "x", Cipher: "c", Version: 1},
		"no version": {ID: "x", Cipher: "c", IV: "i"},
	} {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, svc.Put(context.Background(), "acc", it), common.ErrValidation)
		})
	}
}

func TestRecordService_SizeLimit(t *testing.T) {
	ctx := context.Background()
	svc, _ := newRecords(t)
	svc.maxItemSize = 200

	big := item("big", 1)
	big.Cipher = strings.Repeat("A", 300)
	assert.ErrorIs(t, svc.Put(ctx, "acc", big), common.ErrSizeLimit)

	items, _, err := svc.Fetch(ctx, "acc", nil)
	require.NoError(t, err)
	assert.Empty(t, items, "oversized record must not reach the store")

	assert.NoError(t, svc.Put(ctx, "acc", item("small", 1)))
}

func TestRecordService_PutManyAligned(t *testing.T) {
	ctx := context.Background()
	svc, _ := newRecords(t)
	require.NoError(t, svc.Put(ctx, "acc", item("b", 5)))

	errs := svc.PutMany(ctx, "acc", []wire.Item{item("a", 1), item("b", 5), item("c", 1)})
	require.Len(t, errs, 3)
	assert.NoError(t, errs[0])
	assert.ErrorIs(t, errs[1], common.ErrVersionConflict)
	assert.NoError(t, errs[2])
}

func TestRecordService_DeleteMany(t *testing.T) {
	ctx := context.Background()
	svc, _ := newRecords(t)
	require.NoError(t, svc.Put(ctx, "acc", item("a", 1)))
	require.NoError(t, svc.Put(ctx, "acc", item("b", 1)))

	errs := svc.DeleteMany(ctx, "acc", []string{"a", "ghost", ""})
	require.Len(t, errs, 3)
	assert.NoError(t, errs[0])
	assert.NoError(t, errs[1], "deleting an absent id succeeds")
	assert.ErrorIs(t, errs[2], common.ErrValidation)

	items, _, err := svc.Fetch(ctx, "acc", nil)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "b", items[0].ID)
}

func TestRecordService_Metadata(t *testing.T) {
	ctx := context.Background()
	m := repomanager.NewMemoryRepositoryManager()
	svc := NewRecordService(m, testConfig(), logging.Discard())
	accounts := NewAccountService(m, testConfig(), logging.Discard())

	id, err := accounts.Create(ctx, []byte("salt"), "fp")
	require.NoError(t, err)

	meta, version, err := svc.GetMetadata(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, meta)
	assert.Zero(t, version)

	env := json.RawMessage(`{"iv":"a","cipher":"b"}`)
	require.NoError(t, svc.SetMetadata(ctx, id, env, 1))
	assert.ErrorIs(t, svc.SetMetadata(ctx, id, env, 1), common.ErrVersionConflict)
	assert.ErrorIs(t, svc.SetMetadata(ctx, id, json.RawMessage(`{broken`), 2), common.ErrValidation)
	assert.ErrorIs(t, svc.SetMetadata(ctx, id, env, 0), common.ErrValidation)

	meta, version, err = svc.GetMetadata(ctx, id)
	require.NoError(t, err)
	assert.JSONEq(t, string(env), string(meta))
	assert.Equal(t, int64(1), version)

	_, _, err = svc.GetMetadata(ctx, "missing")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestRecordService_Subscriptions(t *testing.T) {
	ctx := context.Background()
	svc, _ := newRecords(t)

	_, err := svc.GetSubscription(ctx, "acc", "phone")
	assert.ErrorIs(t, err, common.ErrorNotFound)

	assert.ErrorIs(t, svc.PutSubscription(ctx, "acc", "phone", json.RawMessage(`nope`)), common.ErrValidation)
	require.NoError(t, svc.PutSubscription(ctx, "acc", "phone", json.RawMessage(`{"endpoint":"https://push"}`)))

	got, err := svc.GetSubscription(ctx, "acc", "phone")
	require.NoError(t, err)
	assert.JSONEq(t, `{"endpoint":"https://push"}`, string(got))

	require.NoError(t, svc.DeleteSubscription(ctx, "acc", "phone"))
	_, err = svc.GetSubscription(ctx, "acc", "phone")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}
