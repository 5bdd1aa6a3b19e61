package topup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/congo-pay/topup-ledger/internal/clock"
	"github.com/congo-pay/topup-ledger/internal/logging"
	"github.com/congo-pay/topup-ledger/internal/money"
	"github.com/congo-pay/topup-ledger/internal/provider"
)

const productName = "Wallet top-up"

// Options configures checkout creation.
type Options struct {
	Currencies []string
	// MinAmount is the smallest accepted top-up in minor units.
	MinAmount  int64
	SuccessURL string
	CancelURL  string
}

// Manager owns the session lifecycle: it opens checkouts at the provider and
// records the pending session, and exposes the guarded terminal transitions.
type Manager struct {
	repo       Repository
	provider   provider.Client
	clock      clock.Clock
	logger     *slog.Logger
	currencies map[string]bool
	opts       Options
}

// NewManager builds a session manager.
func NewManager(repo Repository, client provider.Client, clk clock.Clock, logger *slog.Logger, opts Options) *Manager {
	if clk == nil {
		clk = clock.Real{}
	}
	currencies := make(map[string]bool, len(opts.Currencies))
	for _, c := range opts.Currencies {
		currencies[money.NormalizeCurrency(c)] = true
	}
	if len(currencies) == 0 {
		currencies["usd"] = true
	}
	if opts.MinAmount <= 0 {
		opts.MinAmount = 1
	}
	return &Manager{
		repo:       repo,
		provider:   client,
		clock:      clk,
		logger:     logging.Component(logger, "topup"),
		currencies: currencies,
		opts:       opts,
	}
}

// CreateInput captures a top-up request.
type CreateInput struct {
	OwnerID  string
	Amount   int64
	Currency string
}

// CreateResult is what the caller needs to redirect the user to checkout.
type CreateResult struct {
	SessionID         string
	ExternalSessionID string
	CheckoutURL       string
	Session           Session
}

// CreateSession opens a provider checkout and records a pending session. If the
// provider call fails nothing is persisted.
func (m *Manager) CreateSession(ctx context.Context, in CreateInput) (CreateResult, error) {
	if in.OwnerID == "" {
		return CreateResult{}, errors.New("owner is required")
	}
	if in.Amount < m.opts.MinAmount {
		return CreateResult{}, fmt.Errorf("%w: minimum is %s", ErrInvalidAmount, money.FormatMinor(m.opts.MinAmount))
	}
	currency := money.NormalizeCurrency(in.Currency)
	if !m.currencies[currency] {
		return CreateResult{}, fmt.Errorf("%w: %q", ErrUnsupportedCurrency, in.Currency)
	}

	sessionID := uuid.NewString()
	cs, err := m.provider.CreateCheckoutSession(ctx, provider.CheckoutRequest{
		ClientReferenceID: sessionID,
		OwnerID:           in.OwnerID,
		Amount:            in.Amount,
		Currency:          currency,
		ProductName:       productName,
		SuccessURL:        m.opts.SuccessURL,
		CancelURL:         m.opts.CancelURL,
	})
	if err != nil {
		return CreateResult{}, fmt.Errorf("create checkout: %w", err)
	}
	if cs.ID == "" || cs.URL == "" {
		return CreateResult{}, fmt.Errorf("create checkout: %w: empty session id or url", provider.ErrUnavailable)
	}

	now := m.clock.Now()
	s := Session{
		ID:          sessionID,
		ExternalID:  cs.ID,
		OwnerID:     in.OwnerID,
		Amount:      in.Amount,
		Currency:    currency,
		Status:      StatusPending,
		CheckoutURL: cs.URL,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := m.repo.Create(ctx, s); err != nil {
		return CreateResult{}, fmt.Errorf("store topup session: %w", err)
	}

	m.logger.Info("topup session created",
		slog.String("session_id", s.ID),
		slog.String("external_session_id", s.ExternalID),
		slog.Int64("amount", s.Amount),
		slog.String("currency", s.Currency))

	return CreateResult{SessionID: s.ID, ExternalSessionID: s.ExternalID, CheckoutURL: s.CheckoutURL, Session: s}, nil
}

// GetSession looks a session up by the provider's session id.
func (m *Manager) GetSession(ctx context.Context, externalID string) (Session, error) {
	return m.repo.GetByExternalID(ctx, externalID)
}

// ListSessions returns the owner's recent sessions.
func (m *Manager) ListSessions(ctx context.Context, owner string, limit int) ([]Session, error) {
	return m.repo.ListByOwner(ctx, owner, limit)
}

// Complete marks a pending session completed. Run it inside the unit of work
// that credits the wallet.
func (m *Manager) Complete(ctx context.Context, externalID string) (Session, error) {
	return m.repo.Transition(ctx, externalID, StatusCompleted, m.clock.Now())
}

// Cancel closes a pending session without credit, e.g. when checkout expired.
func (m *Manager) Cancel(ctx context.Context, externalID string) (Session, error) {
	return m.transitionNoCredit(ctx, externalID, StatusCanceled)
}

// Fail closes a pending session whose payment failed.
func (m *Manager) Fail(ctx context.Context, externalID string) (Session, error) {
	return m.transitionNoCredit(ctx, externalID, StatusFailed)
}

func (m *Manager) transitionNoCredit(ctx context.Context, externalID string, to Status) (Session, error) {
	s, err := m.repo.Transition(ctx, externalID, to, m.clock.Now())
	if err != nil {
		return s, err
	}
	m.logger.Info("topup session closed",
		slog.String("external_session_id", externalID),
		slog.String("status", string(to)))
	return s, nil
}
