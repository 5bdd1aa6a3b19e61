package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/congo-pay/topup-ledger/internal/money"
)

const (
	defaultAppName         = "TopupLedger"
	defaultAppEnv          = "development"
	defaultPort            = "8080"
	defaultLogLevel        = "info"
	defaultShutdownDelay   = 10 * time.Second
	defaultIdempotencyTTL  = 24 * time.Hour
	defaultWebhookEventTTL = 72 * time.Hour
	defaultProviderBaseURL = "https://api.stripe.com"
	defaultProviderTimeout = 10 * time.Second
	defaultWebhookTol      = 5 * time.Minute
	defaultKafkaTopic      = "ledger-events"
	defaultMinTopup        = "0.50"
	defaultDBMaxConns      = 10
	defaultRedisPoolSize   = 10
	defaultConnectTimeout  = 5 * time.Second
	devCallerSecret        = "dev-only-caller-secret"

	idemTTLSecondsEnvVar   = "IDEMPOTENCY_TTL_SECONDS"
	idemTTLDurEnvVar       = "IDEMPOTENCY_TTL"
	shutdownSecondsEnvVar  = "SHUTDOWN_TIMEOUT_SECONDS"
	shutdownDurationEnvVar = "SHUTDOWN_TIMEOUT"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string
	AppEnv         string
	Port           string
	LogLevel       string
	DatabaseURL    string
	RedisURL       string
	ShutdownPeriod time.Duration
	IdempotencyTTL time.Duration

	DatabaseMaxConns int32
	RedisPoolSize    int32
	ConnectTimeout   time.Duration

	KafkaBrokers []string
	KafkaTopic   string

	ProviderBaseURL       string
	ProviderSecretKey     string
	ProviderWebhookSecret string
	ProviderTimeout       time.Duration
	WebhookTolerance      time.Duration
	WebhookEventTTL       time.Duration
	CheckoutSuccessURL    string
	CheckoutCancelURL     string

	CallerJWTSecret     string
	SupportedCurrencies []string
	// MinTopupAmount is in minor units.
	MinTopupAmount int64
}

// Load reads an optional .env file, then the environment, and validates the
// result. Variables already set in the environment win over .env.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from the process environment only.
func FromEnv() (Config, error) {
	cfg := Config{
		AppName:               getEnv("APP_NAME", defaultAppName),
		AppEnv:                getEnv("APP_ENV", defaultAppEnv),
		Port:                  getEnv("PORT", defaultPort),
		LogLevel:              strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		RedisURL:              os.Getenv("REDIS_URL"),
		ShutdownPeriod:        defaultShutdownDelay,
		IdempotencyTTL:        defaultIdempotencyTTL,
		KafkaBrokers:          splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:            getEnv("KAFKA_TOPIC", defaultKafkaTopic),
		ProviderBaseURL:       getEnv("PROVIDER_BASE_URL", defaultProviderBaseURL),
		ProviderSecretKey:     os.Getenv("PROVIDER_SECRET_KEY"),
		ProviderWebhookSecret: os.Getenv("PROVIDER_WEBHOOK_SECRET"),
		CheckoutSuccessURL:    getEnv("CHECKOUT_SUCCESS_URL", "http://localhost:3000/topup/success?session_id={CHECKOUT_SESSION_ID}"),
		CheckoutCancelURL:     getEnv("CHECKOUT_CANCEL_URL", "http://localhost:3000/topup/cancel"),
		CallerJWTSecret:       os.Getenv("CALLER_JWT_SECRET"),
		SupportedCurrencies:   splitList(getEnv("SUPPORTED_CURRENCIES", "usd")),
	}

	var err error
	if cfg.ShutdownPeriod, err = secondsOrDuration(shutdownSecondsEnvVar, shutdownDurationEnvVar, defaultShutdownDelay); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = secondsOrDuration(idemTTLSecondsEnvVar, idemTTLDurEnvVar, defaultIdempotencyTTL); err != nil {
		return Config{}, err
	}
	if cfg.WebhookEventTTL, err = duration("WEBHOOK_EVENT_TTL", defaultWebhookEventTTL); err != nil {
		return Config{}, err
	}
	if cfg.ProviderTimeout, err = duration("PROVIDER_TIMEOUT", defaultProviderTimeout); err != nil {
		return Config{}, err
	}
	if cfg.WebhookTolerance, err = duration("WEBHOOK_TOLERANCE", defaultWebhookTol); err != nil {
		return Config{}, err
	}
	if cfg.ConnectTimeout, err = duration("CONNECT_TIMEOUT", defaultConnectTimeout); err != nil {
		return Config{}, err
	}
	if cfg.DatabaseMaxConns, err = positiveInt("DB_MAX_CONNS", defaultDBMaxConns); err != nil {
		return Config{}, err
	}
	if cfg.RedisPoolSize, err = positiveInt("REDIS_POOL_SIZE", defaultRedisPoolSize); err != nil {
		return Config{}, err
	}
	if cfg.MinTopupAmount, err = money.ParseMinor(getEnv("MIN_TOPUP_AMOUNT", defaultMinTopup)); err != nil {
		return Config{}, fmt.Errorf("invalid MIN_TOPUP_AMOUNT: %w", err)
	}

	if cfg.IsDev() {
		if cfg.CallerJWTSecret == "" {
			cfg.CallerJWTSecret = devCallerSecret
		}
		return cfg, nil
	}

	required := []struct{ name, value string }{
		{"DATABASE_URL", cfg.DatabaseURL},
		{"REDIS_URL", cfg.RedisURL},
		{"PROVIDER_SECRET_KEY", cfg.ProviderSecretKey},
		{"PROVIDER_WEBHOOK_SECRET", cfg.ProviderWebhookSecret},
		{"CALLER_JWT_SECRET", cfg.CallerJWTSecret},
	}
	for _, r := range required {
		if r.value == "" {
			return Config{}, fmt.Errorf("%s must be set when APP_ENV=%s", r.name, cfg.AppEnv)
		}
	}
	return cfg, nil
}

// IsDev reports whether the service may run on in-memory backends and the
// sandbox provider.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func secondsOrDuration(secondsVar, durationVar string, fallback time.Duration) (time.Duration, error) {
	if v := os.Getenv(secondsVar); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", secondsVar, err)
		}
		return time.Duration(seconds) * time.Second, nil
	}
	return duration(durationVar, fallback)
}

func duration(name string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(name)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", name)
	}
	return d, nil
}

func positiveInt(name string, fallback int32) (int32, error) {
	v := os.Getenv(name)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(v, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", name)
	}
	return int32(n), nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
