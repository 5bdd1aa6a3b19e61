package idempotency

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/topup-ledger/internal/clock"
	"github.com/congo-pay/topup-ledger/internal/store"
)

func countFirstClaims(t *testing.T, g Guard, key string, workers int) int32 {
	t.Helper()
	var (
		wg    sync.WaitGroup
		first atomic.Int32
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := g.Claim(context.Background(), key)
			if err != nil {
				t.Errorf("claim: %v", err)
				return
			}
			if ok {
				first.Add(1)
			}
		}()
	}
	wg.Wait()
	return first.Load()
}

func TestMemoryGuardSingleFirstClaim(t *testing.T) {
	g := NewMemoryGuard(store.NewMemory(), nil, 0)
	assert.EqualValues(t, 1, countFirstClaims(t, g, SessionKey("cs_1"), 50))

	ok, err := g.Claim(context.Background(), SessionKey("cs_2"))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryGuardRollbackForgetsClaim(t *testing.T) {
	db := store.NewMemory()
	g := NewMemoryGuard(db, nil, 0)
	ctx := context.Background()

	boom := errors.New("boom")
	err := db.WithinTx(ctx, func(ctx context.Context) error {
		ok, err := g.Claim(ctx, "k")
		require.NoError(t, err)
		require.True(t, ok)
		return boom
	})
	require.ErrorIs(t, err, boom)

	ok, err := g.Claim(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok, "claim should be available again after rollback")
}

func TestMemoryGuardTTL(t *testing.T) {
	clk := clock.NewFixed(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	g := NewMemoryGuard(store.NewMemory(), clk, time.Minute)
	ctx := context.Background()

	ok, _ := g.Claim(ctx, "evt")
	assert.True(t, ok)
	ok, _ = g.Claim(ctx, "evt")
	assert.False(t, ok)

	clk.Advance(2 * time.Minute)
	ok, _ = g.Claim(ctx, "evt")
	assert.True(t, ok)
}

func TestMemoryGuardSeen(t *testing.T) {
	clk := clock.NewFixed(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	g := NewMemoryGuard(store.NewMemory(), clk, time.Minute)
	ctx := context.Background()

	seen, err := g.Seen(ctx, "evt")
	require.NoError(t, err)
	assert.False(t, seen)

	g.Claim(ctx, "evt")
	seen, _ = g.Seen(ctx, "evt")
	assert.True(t, seen)

	clk.Advance(2 * time.Minute)
	seen, _ = g.Seen(ctx, "evt")
	assert.False(t, seen, "expired claims are not seen")
}

func TestEmptyKeyRejected(t *testing.T) {
	g := NewMemoryGuard(store.NewMemory(), nil, 0)
	_, err := g.Claim(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyKey)
}

func setupRedisGuard(t *testing.T, ttl time.Duration) (*RedisGuard, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		cache.Close()
		mr.Close()
	})
	return NewRedisGuard(cache, ttl), mr
}

func TestRedisGuardSingleFirstClaim(t *testing.T) {
	g, _ := setupRedisGuard(t, time.Hour)
	assert.EqualValues(t, 1, countFirstClaims(t, g, EventKey("evt_1"), 25))
}

func TestRedisGuardExpiryAndSeen(t *testing.T) {
	g, mr := setupRedisGuard(t, time.Minute)
	ctx := context.Background()

	seen, err := g.Seen(ctx, "evt_2")
	require.NoError(t, err)
	assert.False(t, seen)

	ok, err := g.Claim(ctx, "evt_2")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, mr.Exists(redisPrefix+"evt_2"))
	seen, err = g.Seen(ctx, "evt_2")
	require.NoError(t, err)
	assert.True(t, seen)

	mr.FastForward(2 * time.Minute)
	seen, err = g.Seen(ctx, "evt_2")
	require.NoError(t, err)
	assert.False(t, seen)
	ok, err = g.Claim(ctx, "evt_2")
	require.NoError(t, err)
	assert.True(t, ok, "expired claim should be claimable")
}

func TestRedisGuardSurfacesStoreErrors(t *testing.T) {
	g, mr := setupRedisGuard(t, time.Minute)
	mr.Close()
	_, err := g.Claim(context.Background(), "evt_3")
	assert.Error(t, err)
	_, err = g.Seen(context.Background(), "evt_3")
	assert.Error(t, err)
}
