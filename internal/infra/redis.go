package infra

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient builds the client behind event dedup, the response cache and
// rate limits, and pings it within the connect timeout.
func NewRedisClient(ctx context.Context, url string, opts ConnOptions) (*redis.Client, error) {
	opt, err := redisOptions(url, opts)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, opts.connectTimeout())
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func redisOptions(url string, opts ConnOptions) (*redis.Options, error) {
	if url == "" {
		return nil, errors.New("redis url is required")
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if opts.MaxConns > 0 {
		opt.PoolSize = int(opts.MaxConns)
	}
	opt.DialTimeout = opts.connectTimeout()
	return opt, nil
}
