package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisPrefix = "claim:v1:"

// RedisGuard claims keys with SET NX and an expiry. It cannot join a database
// transaction, so it only records webhook event ids after their processing
// committed.
type RedisGuard struct {
	cache *redis.Client
	ttl   time.Duration
}

// NewRedisGuard builds a guard whose claims expire after ttl.
func NewRedisGuard(cache *redis.Client, ttl time.Duration) *RedisGuard {
	return &RedisGuard{cache: cache, ttl: ttl}
}

func (g *RedisGuard) Claim(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, ErrEmptyKey
	}
	ok, err := g.cache.SetNX(ctx, redisPrefix+key, time.Now().UTC().Format(time.RFC3339Nano), g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", key, err)
	}
	return ok, nil
}

// Seen reports whether key was claimed and has not expired.
func (g *RedisGuard) Seen(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, ErrEmptyKey
	}
	n, err := g.cache.Exists(ctx, redisPrefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("lookup %s: %w", key, err)
	}
	return n > 0, nil
}
