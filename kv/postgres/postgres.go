// Package postgres implements the store interface on PostgreSQL via a
// pgx connection pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/beisanytime/shiurhub"
	"github.com/beisanytime/shiurhub/kv/internal"
)

const schema = `
CREATE TABLE IF NOT EXISTS kv (
	key   TEXT PRIMARY KEY,
	value BYTEA NOT NULL
)`

type Store struct {
	pool *pgxpool.Pool
}

// Open connects to the database at dsn and ensures the schema exists.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("open postgres: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("open postgres: create schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.pool.QueryRow(ctx, `SELECT value FROM kv WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("get %s: %w", key, shiurhub.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return value, nil
}

func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO kv (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`, key, value)
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM kv WHERE key = $1`, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (s *Store) ListKeys(ctx context.Context, prefix string, limit int, cursor string) (shiurhub.KeyPage, error) {
	if limit <= 0 {
		limit = 1000
	}

	after, err := internal.DecodeCursor(cursor)
	if err != nil {
		return shiurhub.KeyPage{}, fmt.Errorf("list keys: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT key FROM kv WHERE key LIKE $1 AND key > $2 ORDER BY key LIMIT $3`,
		escapeLike(prefix)+"%", after, limit+1)
	if err != nil {
		return shiurhub.KeyPage{}, fmt.Errorf("list keys: %w", err)
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return shiurhub.KeyPage{}, fmt.Errorf("list keys: scan: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return shiurhub.KeyPage{}, fmt.Errorf("list keys: rows: %w", err)
	}

	page := shiurhub.KeyPage{}
	if len(keys) > limit {
		page.Keys = keys[:limit]
		page.Cursor = internal.EncodeCursor(keys[limit-1])
	} else {
		page.Keys = keys
	}
	return page, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// escapeLike escapes LIKE metacharacters so a prefix containing % or _
// matches literally. Postgres defaults to backslash as the escape
// character.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
