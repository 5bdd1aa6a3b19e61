package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var managedVars = []string{
	"APP_NAME", "APP_ENV", "PORT", "LOG_LEVEL", "DATABASE_URL", "REDIS_URL",
	"KAFKA_BROKERS", "KAFKA_TOPIC", "SHUTDOWN_TIMEOUT", "SHUTDOWN_TIMEOUT_SECONDS",
	"IDEMPOTENCY_TTL", "IDEMPOTENCY_TTL_SECONDS", "WEBHOOK_EVENT_TTL",
	"PROVIDER_BASE_URL", "PROVIDER_SECRET_KEY", "PROVIDER_WEBHOOK_SECRET",
	"PROVIDER_TIMEOUT", "WEBHOOK_TOLERANCE", "CHECKOUT_SUCCESS_URL",
	"CHECKOUT_CANCEL_URL", "CALLER_JWT_SECRET", "SUPPORTED_CURRENCIES",
	"MIN_TOPUP_AMOUNT", "DB_MAX_CONNS", "REDIS_POOL_SIZE", "CONNECT_TIMEOUT",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, v := range managedVars {
		t.Setenv(v, "")
	}
}

func TestFromEnvDevDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.True(t, cfg.IsDev())
	assert.Equal(t, "TopupLedger", cfg.AppName)
	assert.Equal(t, ":8080", cfg.Address())
	assert.Equal(t, 10*time.Second, cfg.ShutdownPeriod)
	assert.Equal(t, 24*time.Hour, cfg.IdempotencyTTL)
	assert.Equal(t, 72*time.Hour, cfg.WebhookEventTTL)
	assert.Equal(t, 10*time.Second, cfg.ProviderTimeout)
	assert.Equal(t, 5*time.Minute, cfg.WebhookTolerance)
	assert.Equal(t, []string{"usd"}, cfg.SupportedCurrencies)
	assert.EqualValues(t, 50, cfg.MinTopupAmount)
	assert.Equal(t, "ledger-events", cfg.KafkaTopic)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.NotEmpty(t, cfg.CallerJWTSecret)
	assert.EqualValues(t, 10, cfg.DatabaseMaxConns)
	assert.EqualValues(t, 10, cfg.RedisPoolSize)
	assert.Equal(t, 5*time.Second, cfg.ConnectTimeout)
}

func TestFromEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", ":9090")
	t.Setenv("SHUTDOWN_TIMEOUT_SECONDS", "3")
	t.Setenv("SHUTDOWN_TIMEOUT", "1m")
	t.Setenv("IDEMPOTENCY_TTL", "2h")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("SUPPORTED_CURRENCIES", "usd,eur")
	t.Setenv("MIN_TOPUP_AMOUNT", "5")
	t.Setenv("PROVIDER_TIMEOUT", "3s")
	t.Setenv("DB_MAX_CONNS", "25")
	t.Setenv("REDIS_POOL_SIZE", "4")
	t.Setenv("CONNECT_TIMEOUT", "2s")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Address())
	assert.Equal(t, 3*time.Second, cfg.ShutdownPeriod, "seconds form wins")
	assert.Equal(t, 2*time.Hour, cfg.IdempotencyTTL)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, []string{"usd", "eur"}, cfg.SupportedCurrencies)
	assert.EqualValues(t, 500, cfg.MinTopupAmount)
	assert.Equal(t, 3*time.Second, cfg.ProviderTimeout)
	assert.EqualValues(t, 25, cfg.DatabaseMaxConns)
	assert.EqualValues(t, 4, cfg.RedisPoolSize)
	assert.Equal(t, 2*time.Second, cfg.ConnectTimeout)
}

func TestFromEnvInvalidValues(t *testing.T) {
	cases := map[string]string{
		"SHUTDOWN_TIMEOUT_SECONDS": "ten",
		"IDEMPOTENCY_TTL":          "forever",
		"WEBHOOK_TOLERANCE":        "-5m",
		"MIN_TOPUP_AMOUNT":         "0.001",
		"DB_MAX_CONNS":             "0",
		"REDIS_POOL_SIZE":          "many",
	}
	for name, value := range cases {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(name, value)
			_, err := FromEnv()
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid "+name)
		})
	}
}

func TestFromEnvProductionRequiresSecrets(t *testing.T) {
	clearEnv(t)
	t.Setenv("APP_ENV", "production")
	t.Setenv("DATABASE_URL", "postgres://x")
	t.Setenv("REDIS_URL", "redis://x")
	t.Setenv("PROVIDER_SECRET_KEY", "sk_live_x")

	_, err := FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PROVIDER_WEBHOOK_SECRET")

	t.Setenv("PROVIDER_WEBHOOK_SECRET", "whsec_x")
	t.Setenv("CALLER_JWT_SECRET", "jwt")
	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.False(t, cfg.IsDev())
	assert.Equal(t, "jwt", cfg.CallerJWTSecret)
}

func TestLoadReadsDotEnv(t *testing.T) {
	clearEnv(t)
	// godotenv never overrides variables that exist, even when empty.
	require.NoError(t, os.Unsetenv("APP_NAME"))
	require.NoError(t, os.Unsetenv("PORT"))
	t.Cleanup(func() {
		os.Unsetenv("APP_NAME")
		os.Unsetenv("PORT")
	})
	t.Setenv("LOG_LEVEL", "DEBUG")

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("APP_NAME=FromDotEnv\nPORT=7000\nLOG_LEVEL=warn\n"), 0o600))
	chdir(t, dir)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "FromDotEnv", cfg.AppName)
	assert.Equal(t, "7000", cfg.Port)
	assert.Equal(t, "debug", cfg.LogLevel, "process environment wins")
}

func TestLoadWithoutDotEnv(t *testing.T) {
	clearEnv(t)
	chdir(t, t.TempDir())

	_, err := Load()
	require.NoError(t, err)
}

// chdir changes the working directory for the duration of the test
// (equivalent of testing.T.Chdir, which needs Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
