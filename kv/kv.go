// Package kv selects and constructs a key-value backend from
// configuration. Backends implement shiurhub.Store; the memory backend is
// the default for development and tests, sqlite and bolt cover single-node
// deployments, and postgres covers anything that needs concurrent writers.
package kv

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/beisanytime/shiurhub"
	"github.com/beisanytime/shiurhub/kv/bolt"
	"github.com/beisanytime/shiurhub/kv/internal"
	"github.com/beisanytime/shiurhub/kv/memory"
	"github.com/beisanytime/shiurhub/kv/postgres"
	"github.com/beisanytime/shiurhub/kv/sqlite"
)

// Config selects a backend and its connection string.
type Config struct {
	Type string `mapstructure:"type" validate:"required,oneof=memory sqlite postgres bolt"`
	DSN  string `mapstructure:"dsn"`
}

func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("kv config: %w: %w", err, shiurhub.ErrConfiguration)
	}
	if c.Type != "memory" && c.DSN == "" {
		return fmt.Errorf("kv config: %s backend requires a dsn: %w", c.Type, shiurhub.ErrConfiguration)
	}
	return nil
}

// Connect opens the configured backend. The caller owns the returned
// store and must Close it.
func Connect(ctx context.Context, cfg Config) (shiurhub.Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Type {
	case "memory":
		return memory.New(), nil
	case "sqlite":
		return sqlite.Open(ctx, cfg.DSN)
	case "postgres":
		return postgres.Open(ctx, cfg.DSN)
	case "bolt":
		return bolt.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("kv: unknown backend %q: %w", cfg.Type, shiurhub.ErrConfiguration)
	}
}

// EncodeCursor wraps the last key of a page into an opaque pagination
// cursor.
func EncodeCursor(lastKey string) string { return internal.EncodeCursor(lastKey) }

// DecodeCursor recovers the last key from a cursor produced by
// EncodeCursor. An empty cursor means start from the beginning.
func DecodeCursor(cursor string) (string, error) { return internal.DecodeCursor(cursor) }
