// Package postgres owns the shared connection pool for the gateway's store.
package postgres

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ourcaldo/indexnow-mono-sub007/internal/platform/config"
)

// Client wraps a pgxpool.Pool with health checking.
type Client struct {
	*pgxpool.Pool
}

// New creates a connection pool from the provided configuration.
// Returns nil if the DSN is empty (Postgres not configured).
func New(ctx context.Context, cfg config.PostgresConfig) (*Client, error) {
	if cfg.DSN == "" {
		return nil, nil
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres DSN: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}

	return &Client{Pool: pool}, nil
}

// Health checks if the database connection is healthy.
func (c *Client) Health(ctx context.Context) error {
	return c.Ping(ctx)
}

var (
	sharedOnce   sync.Once
	sharedClient *Client
	sharedErr    error
)

// Shared returns the process-wide pool, initializing it exactly once on first
// use. Call sites that cannot receive the client through construction use this
// instead of an implicit package-level variable mutated at import time.
func Shared(ctx context.Context, cfg config.PostgresConfig) (*Client, error) {
	sharedOnce.Do(func() {
		sharedClient, sharedErr = New(ctx, cfg)
	})
	return sharedClient, sharedErr
}
