// Package bolt implements the store interface on a bbolt file. Keys live
// in a single bucket; prefix listing rides bbolt's ordered cursor.
package bolt

import (
	"bytes"
	"context"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/beisanytime/shiurhub"
	"github.com/beisanytime/shiurhub/kv/internal"
)

var bucketName = []byte("shiurhub")

type Store struct {
	db *bolt.DB
}

// Open opens (creating if necessary) the bbolt database at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("open bolt: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open bolt: create bucket: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var value []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketName).Get([]byte(key))
		if v == nil {
			return fmt.Errorf("get %s: %w", key, shiurhub.ErrNotFound)
		}
		value = make([]byte, len(v))
		copy(value, v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Put([]byte(key), value)
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (s *Store) ListKeys(ctx context.Context, prefix string, limit int, cursor string) (shiurhub.KeyPage, error) {
	if err := ctx.Err(); err != nil {
		return shiurhub.KeyPage{}, err
	}
	if limit <= 0 {
		limit = 1000
	}

	after, err := internal.DecodeCursor(cursor)
	if err != nil {
		return shiurhub.KeyPage{}, fmt.Errorf("list keys: %w", err)
	}

	page := shiurhub.KeyPage{Keys: []string{}}
	err = s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketName).Cursor()
		pfx := []byte(prefix)

		k, _ := c.Seek(pfx)
		if after != "" {
			k, _ = c.Seek(append([]byte(after), 0))
		}

		for ; k != nil && bytes.HasPrefix(k, pfx); k, _ = c.Next() {
			if len(page.Keys) == limit {
				page.Cursor = internal.EncodeCursor(page.Keys[limit-1])
				return nil
			}
			page.Keys = append(page.Keys, string(k))
		}
		return nil
	})
	if err != nil {
		return shiurhub.KeyPage{}, fmt.Errorf("list keys: %w", err)
	}
	return page, nil
}

func (s *Store) Close() error { return s.db.Close() }
