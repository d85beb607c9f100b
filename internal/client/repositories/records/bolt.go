package records

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/praylist/internal/wire"
	bolt "go.etcd.io/bbolt"
)

// Bucket is the bbolt bucket holding the snapshot. Keys are big-endian
// positions so cursor order is stored order.
var Bucket = []byte("records")

type BoltRepository struct {
	db *bolt.DB
}

func NewBoltRepository(db *bolt.DB) *BoltRepository {
	return &BoltRepository{db: db}
}

func (r *BoltRepository) ReplaceAll(_ context.Context, items []wire.Item) error {
	err := r.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(Bucket) != nil {
			if err := tx.DeleteBucket(Bucket); err != nil {
				return err
			}
		}
		b, err := tx.CreateBucket(Bucket)
		if err != nil {
			return err
		}
		for pos, it := range items {
			raw, err := json.Marshal(it)
			if err != nil {
				return err
			}
			key := make([]byte, 8)
			binary.BigEndian.PutUint64(key, uint64(pos))
			if err := b.Put(key, raw); err != nil {
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

func (r *BoltRepository) All(_ context.Context) ([]wire.Item, error) {
	var out []wire.Item
	err := r.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(Bucket)
		if b == nil {
			return nil
		}
		return b.ForEach(func(_, v []byte) error {
			var it wire.Item
			if err := json.Unmarshal(v, &it); err != nil {
				return err
			}
			out = append(out, it)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to select records: %w", err)
	}
	return out, nil
}

func (r *BoltRepository) Clear(_ context.Context) error {
	err := r.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(Bucket) == nil {
			return nil
		}
		return tx.DeleteBucket(Bucket)
	})
	if err != nil {
		return fmt.Errorf("failed to clear records: %w", err)
	}
	return nil
}
