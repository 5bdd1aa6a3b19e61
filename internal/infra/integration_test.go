//go:build integration

package infra_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/congo-pay/topup-ledger/internal/clock"
	"github.com/congo-pay/topup-ledger/internal/history"
	"github.com/congo-pay/topup-ledger/internal/idempotency"
	"github.com/congo-pay/topup-ledger/internal/infra"
	"github.com/congo-pay/topup-ledger/internal/ledger"
	"github.com/congo-pay/topup-ledger/internal/logging"
	"github.com/congo-pay/topup-ledger/internal/store"
	"github.com/congo-pay/topup-ledger/internal/transfer"
)

func setupPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		Env:          map[string]string{"POSTGRES_PASSWORD": "password", "POSTGRES_DB": "ledger", "POSTGRES_USER": "user"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{ContainerRequest: req, Started: true})
	require.NoError(t, err)
	t.Cleanup(func() { container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	pool, err := infra.NewPostgresPool(ctx, fmt.Sprintf("postgres://user:password@%s:%s/ledger?sslmode=disable", host, port.Port()), infra.ConnOptions{MaxConns: 4})
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, infra.Migrate(ctx, pool))
	// Applying twice must be harmless.
	require.NoError(t, infra.Migrate(ctx, pool))
	return pool
}

func TestPostgresConcurrentTransfers(t *testing.T) {
	pool := setupPostgres(t)
	ctx := context.Background()
	db := store.NewPostgres(pool)
	l := ledger.NewPostgresLedger(db, clock.Real{})

	require.NoError(t, ledger.SeedBalance(ctx, l, "alice", 10000))
	require.NoError(t, ledger.SeedBalance(ctx, l, "bob", 0))
	coord := transfer.NewCoordinator(db, l, nil, nil, clock.Real{}, logging.Discard())

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		failures  []error
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := coord.Transfer(ctx, transfer.Input{SenderID: "alice", RecipientIdentifier: "bob", Amount: 6000})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
				return
			}
			failures = append(failures, err)
		}()
	}
	wg.Wait()

	require.Equal(t, 1, succeeded)
	require.Len(t, failures, 1)
	assert.True(t, errors.Is(failures[0], transfer.ErrInsufficientFunds), failures[0])

	alice, err := l.Wallet(ctx, "alice")
	require.NoError(t, err)
	bob, err := l.Wallet(ctx, "bob")
	require.NoError(t, err)
	assert.EqualValues(t, 4000, alice.Balance)
	assert.EqualValues(t, 6000, bob.Balance)

	transfers, err := l.Transfers(ctx, "bob", 10)
	require.NoError(t, err)
	assert.Len(t, transfers, 1)

	summary, err := history.OpenSQLReader(pool).Summary(ctx, "alice")
	require.NoError(t, err)
	assert.EqualValues(t, 6000, summary.Sent)
}

func TestPostgresClaimIsSingleUse(t *testing.T) {
	pool := setupPostgres(t)
	ctx := context.Background()
	db := store.NewPostgres(pool)
	guard := idempotency.NewPostgresGuard(db, clock.Real{})
	key := idempotency.SessionKey("cs_integration")

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		first int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := guard.Claim(ctx, key)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				first++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, first)

	// A claim made inside a rolled back unit of work does not stick.
	rollback := errors.New("rollback")
	err := db.WithinTx(ctx, func(ctx context.Context) error {
		ok, err := guard.Claim(ctx, idempotency.SessionKey("cs_rolled_back"))
		require.NoError(t, err)
		require.True(t, ok)
		return rollback
	})
	require.ErrorIs(t, err, rollback)

	ok, err := guard.Claim(ctx, idempotency.SessionKey("cs_rolled_back"))
	require.NoError(t, err)
	assert.True(t, ok)
}
