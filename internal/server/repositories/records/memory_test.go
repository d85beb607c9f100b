package records

import (
	"context"
	"sync"
	"testing"

	"github.com/dmitrijs2005/praylist/internal/common"
	"github.com/dmitrijs2005/praylist/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func put(r *MemoryRepository, id string, version int64) error {
	return r.Put(context.Background(), &models.StoredRecord{AccountID: "acc", ID: id, Cipher: "c", IV: "i", Version: version})
}

func TestMemoryRepository_VersionEnforcement(t *testing.T) {
	tests := []struct {
		name     string
		stored   int64
		proposed int64
		conflict bool
	}{
		{"equal version rejected", 1, 1, true},
		{"newer version accepted", 1, 2, false},
		{"older version rejected", 1, 0, true},
		{"skipping ahead accepted", 3, 9, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewMemoryRepository()
			require.NoError(t, put(r, "x", tt.stored))

			err := put(r, "x", tt.proposed)
			if tt.conflict {
				assert.ErrorIs(t, err, common.ErrVersionConflict)
			} else {
				assert.NoError(t, err)
			}

			got, _ := r.ListByIDs(context.Background(), "acc", []string{"x"})
			require.Len(t, got, 1)
			want := tt.proposed
			if tt.conflict {
				want = tt.stored
			}
			assert.Equal(t, want, got[0].Version)
		})
	}
}

func TestMemoryRepository_PartitionedByAccount(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()

	require.NoError(t, put(r, "x", 1))
	require.NoError(t, r.Put(ctx, &models.StoredRecord{AccountID: "other", ID: "x", Version: 1}))

	mine, err := r.List(ctx, "acc")
	require.NoError(t, err)
	require.Len(t, mine, 1)

	require.NoError(t, r.Delete(ctx, "other", "x"))
	require.NoError(t, r.Delete(ctx, "other", "x"))

	mine, _ = r.List(ctx, "acc")
	assert.Len(t, mine, 1)
	theirs, _ := r.List(ctx, "other")
	assert.Empty(t, theirs)
}

func TestMemoryRepository_ListByIDs(t *testing.T) {
	r := NewMemoryRepository()
	for _, id := range []string{"c", "a", "b"} {
		require.NoError(t, put(r, id, 1))
	}

	got, err := r.ListByIDs(context.Background(), "acc", []string{"c", "missing", "a", "c"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "c", got[1].ID)
}

func TestMemoryRepository_ConcurrentWritersOneWins(t *testing.T) {
	r := NewMemoryRepository()
	require.NoError(t, put(r, "x", 1))

	const writers = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if put(r, "x", 2) == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
}
