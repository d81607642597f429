package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var conversationsBucket = []byte("conversations")

// BoltStore is a single-file bbolt Store. All entries live in one
// bucket keyed by the composite conversation id.
type BoltStore struct {
	db *bolt.DB
}

var _ Store = (*BoltStore)(nil)

// OpenBolt opens (or creates) the database file and the bucket.
func OpenBolt(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(conversationsBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return &BoltStore{db: db}, nil
}

func (b *BoltStore) Get(_ context.Context, key string) ([]byte, error) {
	var out []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(conversationsBucket).Get([]byte(key))
		if v == nil {
			return ErrNotFound
		}
		out = make([]byte, len(v))
		copy(out, v)
		return nil
	})
	if err == ErrNotFound {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return out, nil
}

func (b *BoltStore) Scan(_ context.Context, match func(key string) bool) (string, []byte, error) {
	if match == nil {
		return "", nil, ErrNotFound
	}
	var foundKey string
	var foundVal []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(conversationsBucket).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if match(string(k)) {
				foundKey = string(k)
				foundVal = make([]byte, len(v))
				copy(foundVal, v)
				return nil
			}
		}
		return ErrNotFound
	})
	if err == ErrNotFound {
		return "", nil, err
	}
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return foundKey, foundVal, nil
}

func (b *BoltStore) Upsert(_ context.Context, key string, value []byte) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(conversationsBucket).Put([]byte(key), value)
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (b *BoltStore) Close() error {
	return b.db.Close()
}
