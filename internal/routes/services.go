package routes

import (
	"errors"
	"log/slog"

	"github.com/congo-pay/topup-ledger/internal/clock"
	"github.com/congo-pay/topup-ledger/internal/history"
	"github.com/congo-pay/topup-ledger/internal/idempotency"
	"github.com/congo-pay/topup-ledger/internal/ledger"
	"github.com/congo-pay/topup-ledger/internal/metrics"
	"github.com/congo-pay/topup-ledger/internal/notification"
	"github.com/congo-pay/topup-ledger/internal/provider"
	"github.com/congo-pay/topup-ledger/internal/settlement"
	"github.com/congo-pay/topup-ledger/internal/store"
	"github.com/congo-pay/topup-ledger/internal/topup"
	"github.com/congo-pay/topup-ledger/internal/transfer"
)

type services struct {
	topup      *topup.Handler
	settlement *settlement.Handler
	transfer   *transfer.Handler
	history    *history.Handler
	// sandbox is set when checkouts go to the in-process provider.
	sandbox *provider.Sandbox
	closers []func() error
	logger  *slog.Logger
}

func newServices(d Deps) (*services, error) {
	clk := d.Clock
	if clk == nil {
		clk = clock.Real{}
	}
	svc := &services{logger: d.Logger}

	var (
		tx       store.TxManager
		ledgerDB ledger.Store
		sessions topup.Repository
		claims   idempotency.Guard
		reader   history.Reader
	)
	if d.DB != nil {
		pg := store.NewPostgres(d.DB)
		tx = pg
		ledgerDB = ledger.NewPostgresLedger(pg, clk)
		sessions = topup.NewPostgresRepository(pg)
		claims = idempotency.NewPostgresGuard(pg, clk)
		sqlReader := history.OpenSQLReader(d.DB)
		reader = sqlReader
		svc.closers = append(svc.closers, sqlReader.Close)
	} else {
		d.Logger.Warn("DATABASE_URL not set, using in-memory ledger")
		mem := store.NewMemory()
		tx = mem
		ledgerDB = ledger.NewInMemory(mem, clk)
		sessions = topup.NewMemoryRepository(mem)
		claims = idempotency.NewMemoryGuard(mem, clk, 0)
		reader = history.NewLedgerReader(ledgerDB)
	}

	var events idempotency.Recorder
	if d.Cache != nil {
		events = idempotency.NewRedisGuard(d.Cache, d.Cfg.WebhookEventTTL)
	} else {
		events = idempotency.NewMemoryGuard(store.NewMemory(), clk, d.Cfg.WebhookEventTTL)
	}

	m := metrics.NewMetrics(d.Registry)

	client := d.Provider
	if client == nil {
		if d.Cfg.ProviderSecretKey == "" {
			if !d.Cfg.IsDev() {
				return nil, errors.New("provider secret key is required outside development")
			}
			d.Logger.Warn("PROVIDER_SECRET_KEY not set, using sandbox provider")
			client = provider.NewSandbox("")
		} else {
			client = provider.NewHTTPClient(provider.HTTPConfig{
				BaseURL:   d.Cfg.ProviderBaseURL,
				SecretKey: d.Cfg.ProviderSecretKey,
				Timeout:   d.Cfg.ProviderTimeout,
				Observer:  m,
			})
		}
	}
	svc.sandbox, _ = client.(*provider.Sandbox)

	notifiers := notification.Multi{notification.NewLoggerNotifier(d.Logger)}
	if d.Events != nil {
		kn := notification.NewKafkaNotifier(d.Events)
		notifiers = append(notifiers, kn)
		svc.closers = append(svc.closers, kn.Close)
	}

	manager := topup.NewManager(sessions, client, clk, d.Logger, topup.Options{
		Currencies: d.Cfg.SupportedCurrencies,
		MinAmount:  d.Cfg.MinTopupAmount,
		SuccessURL: d.Cfg.CheckoutSuccessURL,
		CancelURL:  d.Cfg.CheckoutCancelURL,
	})
	processor := settlement.NewProcessor(settlement.Deps{
		Tx:              tx,
		Sessions:        manager,
		Ledger:          ledgerDB,
		Claims:          claims,
		Events:          events,
		Provider:        client,
		Verifier:        provider.NewWebhookVerifier(d.Cfg.ProviderWebhookSecret, d.Cfg.WebhookTolerance, clk),
		Notifier:        notifiers,
		Metrics:         m,
		Clock:           clk,
		Logger:          d.Logger,
		ProviderTimeout: d.Cfg.ProviderTimeout,
	})
	coordinator := transfer.NewCoordinator(tx, ledgerDB, notifiers, m, clk, d.Logger)

	svc.topup = topup.NewHandler(manager)
	svc.settlement = settlement.NewHandler(processor)
	svc.transfer = transfer.NewHandler(coordinator)
	svc.history = history.NewHandler(ledgerDB, reader)
	return svc, nil
}

func (s *services) close() {
	for _, closeFn := range s.closers {
		if err := closeFn(); err != nil {
			s.logger.Warn("close service resource", slog.Any("error", err))
		}
	}
}
