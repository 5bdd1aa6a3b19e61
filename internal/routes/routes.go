package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/topup-ledger/internal/clock"
	"github.com/congo-pay/topup-ledger/internal/config"
	"github.com/congo-pay/topup-ledger/internal/middleware"
	"github.com/congo-pay/topup-ledger/internal/notification"
	"github.com/congo-pay/topup-ledger/internal/provider"
)

const (
	verifyPerMinute   = 30
	checkoutPerMinute = 10
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
	// Events receives ledger events. Optional.
	Events notification.MessageWriter
	// Registry backs /metrics. A fresh registry is used when nil.
	Registry *prometheus.Registry
	// Provider overrides the payment provider client built from Cfg.
	Provider provider.Client
	Clock    clock.Clock
}

// Setup configures middlewares and all application routes. The returned
// cleanup releases resources the services opened.
func Setup(app *fiber.App, d Deps) (func(), error) {
	// Enforce DB/Redis presence outside of dev, even though config also checks.
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return nil, fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return nil, fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}
	if d.Registry == nil {
		d.Registry = prometheus.NewRegistry()
	}

	svc, err := newServices(d)
	if err != nil {
		return nil, err
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger))

	RegisterHealthRoutes(app, d)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(d.Registry, promhttp.HandlerOpts{})))

	RegisterWebhookRoutes(app, svc.settlement)

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals("X-Request-ID").(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})
	if d.Cfg.IsDev() {
		RegisterDevRoutes(api, d.Cfg.CallerJWTSecret, svc.sandbox)
	}

	protected := api.Group("", middleware.CallerAuth(d.Cfg.CallerJWTSecret))
	idem := func(c *fiber.Ctx) error { return c.Next() }
	if d.Cache != nil {
		idem = middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger)
	}

	RegisterTopupRoutes(protected, svc.topup, svc.settlement, topupLimits{
		idempotency: idem,
		checkout:    middleware.RateLimit(d.Cache, "checkout", checkoutPerMinute),
		verify:      middleware.RateLimit(d.Cache, "verify", verifyPerMinute),
	})
	RegisterTransferRoutes(protected, svc.transfer, idem)
	RegisterWalletRoutes(protected, svc.history)

	return svc.close, nil
}
