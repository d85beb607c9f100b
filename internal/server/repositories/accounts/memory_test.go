package accounts

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/dmitrijs2005/praylist/internal/common"
	"github.com/dmitrijs2005/praylist/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRepository_CreateGet(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()

	require.NoError(t, r.Create(ctx, &models.Account{ID: "a", Salt: []byte("s"), AuthHash: []byte("h")}))
	require.Error(t, r.Create(ctx, &models.Account{ID: "a"}))

	got, err := r.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []byte("s"), got.Salt)
	assert.False(t, got.CreatedAt.IsZero())

	got.Salt[0] = 'x'
	again, _ := r.Get(ctx, "a")
	assert.Equal(t, []byte("s"), again.Salt, "callers must not alias stored bytes")

	_, err = r.Get(ctx, "missing")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestMemoryRepository_UpdateMetadataVersioning(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()
	require.NoError(t, r.Create(ctx, &models.Account{ID: "a"}))

	require.NoError(t, r.UpdateMetadata(ctx, "a", json.RawMessage(`{"v":1}`), 1))
	assert.ErrorIs(t, r.UpdateMetadata(ctx, "a", json.RawMessage(`{"v":"dup"}`), 1), common.ErrVersionConflict)
	assert.ErrorIs(t, r.UpdateMetadata(ctx, "a", json.RawMessage(`{"v":0}`), 0), common.ErrVersionConflict)
	require.NoError(t, r.UpdateMetadata(ctx, "a", json.RawMessage(`{"v":2}`), 2))

	got, err := r.Get(ctx, "a")
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":2}`, string(got.Metadata))
	assert.Equal(t, int64(2), got.MetadataVersion)
}
