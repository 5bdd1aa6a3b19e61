package infra

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const defaultConnectTimeout = 5 * time.Second

// ConnOptions bounds the backends' connection pools and how long start-up
// may wait on them.
type ConnOptions struct {
	MaxConns       int32
	ConnectTimeout time.Duration
}

func (o ConnOptions) connectTimeout() time.Duration {
	if o.ConnectTimeout <= 0 {
		return defaultConnectTimeout
	}
	return o.ConnectTimeout
}

// NewPostgresPool opens the ledger's pool and pings it within the connect timeout.
func NewPostgresPool(ctx context.Context, url string, opts ConnOptions) (*pgxpool.Pool, error) {
	cfg, err := postgresConfig(url, opts)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, opts.connectTimeout())
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

func postgresConfig(url string, opts ConnOptions) (*pgxpool.Config, error) {
	if url == "" {
		return nil, errors.New("database url is required")
	}
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	cfg.ConnConfig.ConnectTimeout = opts.connectTimeout()
	return cfg, nil
}
