// Package memory implements the store interface with an in-process map.
// Intended for development and tests; data does not survive a restart.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/beisanytime/shiurhub"
	"github.com/beisanytime/shiurhub/kv/internal"
)

type Store struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func New() *Store {
	return &Store{data: make(map[string][]byte)}
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.data[key]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", key, shiurhub.ErrNotFound)
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := make([]byte, len(value))
	copy(stored, value)
	s.data[key] = stored
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, key)
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

	s.mu.RLock()
	keys := make([]string, 0, len(s.data))
	for key := range s.data {
		if strings.HasPrefix(key, prefix) && key > after {
			keys = append(keys, key)
		}
	}
	s.mu.RUnlock()

	sort.Strings(keys)

	page := shiurhub.KeyPage{}
	if len(keys) > limit {
		page.Keys = keys[:limit]
		page.Cursor = internal.EncodeCursor(keys[limit-1])
	} else {
		page.Keys = keys
	}
	return page, nil
}

func (s *Store) Close() error { return nil }
