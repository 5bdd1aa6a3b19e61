package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/topup-ledger/internal/config"
	"github.com/congo-pay/topup-ledger/internal/middleware"
	"github.com/congo-pay/topup-ledger/internal/notification"
	"github.com/congo-pay/topup-ledger/internal/routes"
)

// Server wraps the Fiber application and shared dependencies.
type Server struct {
	app     *fiber.App
	cfg     config.Config
	cleanup func()
}

// New instantiates the HTTP server and delegates route wiring to routes.Setup.
// db, cache and events may be nil in development.
func New(cfg config.Config, db *pgxpool.Pool, cache *redis.Client, events notification.MessageWriter, logger *slog.Logger) (*Server, error) {
	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		ErrorHandler: middleware.ErrorHandler(logger),
	})

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	cleanup, err := routes.Setup(app, routes.Deps{
		Cfg:      cfg,
		DB:       db,
		Cache:    cache,
		Logger:   logger,
		Events:   events,
		Registry: registry,
	})
	if err != nil {
		return nil, err
	}

	return &Server{app: app, cfg: cfg, cleanup: cleanup}, nil
}

// Listen starts the HTTP server.
func (s *Server) Listen() error {
	return s.app.Listen(s.cfg.Address())
}

// Shutdown gracefully stops the HTTP server, then releases service resources.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.app.ShutdownWithContext(ctx)
	s.cleanup()
	return err
}
