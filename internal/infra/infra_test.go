package infra

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresConfigAppliesOptions(t *testing.T) {
	cfg, err := postgresConfig("postgres://user:pw@localhost:5432/ledger", ConnOptions{MaxConns: 7, ConnectTimeout: 2 * time.Second})
	require.NoError(t, err)
	assert.EqualValues(t, 7, cfg.MaxConns)
	assert.Equal(t, 2*time.Second, cfg.ConnConfig.ConnectTimeout)

	cfg, err = postgresConfig("postgres://user:pw@localhost:5432/ledger", ConnOptions{})
	require.NoError(t, err)
	assert.Equal(t, defaultConnectTimeout, cfg.ConnConfig.ConnectTimeout)

	_, err = postgresConfig("", ConnOptions{})
	assert.Error(t, err)
	_, err = postgresConfig("postgres://%zz", ConnOptions{})
	assert.Error(t, err)
}

func TestRedisOptionsAppliesOptions(t *testing.T) {
	opt, err := redisOptions("redis://localhost:6379/2", ConnOptions{MaxConns: 4, ConnectTimeout: time.Second})
	require.NoError(t, err)
	assert.Equal(t, 4, opt.PoolSize)
	assert.Equal(t, time.Second, opt.DialTimeout)
	assert.Equal(t, 2, opt.DB)

	_, err = redisOptions("", ConnOptions{})
	assert.Error(t, err)
	_, err = redisOptions("http://localhost", ConnOptions{})
	assert.Error(t, err)
}

func TestNewRedisClientPings(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	client, err := NewRedisClient(context.Background(), "redis://"+addr, ConnOptions{MaxConns: 2})
	require.NoError(t, err)
	defer client.Close()

	mr.Close()
	_, err = NewRedisClient(context.Background(), "redis://"+addr, ConnOptions{ConnectTimeout: 200 * time.Millisecond})
	assert.Error(t, err)
}
