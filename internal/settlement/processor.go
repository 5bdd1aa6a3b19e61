// Package settlement turns confirmed provider payments into wallet credits.
// Webhook deliveries and verification polls run the same algorithm, and a
// session is credited at most once whichever arrives first.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/congo-pay/topup-ledger/internal/clock"
	"github.com/congo-pay/topup-ledger/internal/idempotency"
	"github.com/congo-pay/topup-ledger/internal/ledger"
	"github.com/congo-pay/topup-ledger/internal/logging"
	"github.com/congo-pay/topup-ledger/internal/metrics"
	"github.com/congo-pay/topup-ledger/internal/money"
	"github.com/congo-pay/topup-ledger/internal/notification"
	"github.com/congo-pay/topup-ledger/internal/provider"
	"github.com/congo-pay/topup-ledger/internal/store"
	"github.com/congo-pay/topup-ledger/internal/topup"
)

var (
	// ErrPaymentNotCompleted means the provider has not captured the payment
	// yet. Nothing was changed; the caller may retry later.
	ErrPaymentNotCompleted = errors.New("payment not completed")

	// ErrSessionClosed is returned when a payment is reported for a session
	// that already failed or was canceled. No credit is applied.
	ErrSessionClosed = errors.New("topup session closed without credit")

	ErrSignatureInvalid    = provider.ErrSignatureInvalid
	ErrMalformedEvent      = provider.ErrMalformedEvent
	ErrSessionNotFound     = topup.ErrSessionNotFound
	ErrProviderUnavailable = provider.ErrUnavailable
)

// Outcome describes what a settlement call did. It doubles as the metrics
// label.
type Outcome string

const (
	OutcomeCredited        Outcome = "credited"
	OutcomeAlreadySettled  Outcome = "already_settled"
	OutcomeAwaitingPayment Outcome = "awaiting_payment"
	OutcomeCanceled        Outcome = "canceled"
	OutcomeFailed          Outcome = "failed"
	OutcomeIgnored         Outcome = "ignored"
	OutcomeDuplicateEvent  Outcome = "duplicate_event"
)

// Result is returned by both entry points.
type Result struct {
	ExternalSessionID string
	Outcome           Outcome
	Credited          bool
	AlreadySettled    bool
	NewBalance        int64
	Amount            int64
	Currency          string
}

// Deps wires a Processor.
type Deps struct {
	Tx       store.TxManager
	Sessions *topup.Manager
	Ledger   ledger.Store
	// Claims must join the unit of work opened by Tx.
	Claims idempotency.Guard
	// Events remembers processed provider event ids. Optional.
	Events          idempotency.Recorder
	Provider        provider.Client
	Verifier        *provider.WebhookVerifier
	Notifier        notification.Notifier
	Metrics         *metrics.Metrics
	Clock           clock.Clock
	Logger          *slog.Logger
	ProviderTimeout time.Duration
}

type Processor struct {
	tx              store.TxManager
	sessions        *topup.Manager
	ledger          ledger.Store
	claims          idempotency.Guard
	events          idempotency.Recorder
	provider        provider.Client
	verifier        *provider.WebhookVerifier
	notifier        notification.Notifier
	metrics         *metrics.Metrics
	clock           clock.Clock
	logger          *slog.Logger
	providerTimeout time.Duration
}

func NewProcessor(d Deps) *Processor {
	if d.Clock == nil {
		d.Clock = clock.Real{}
	}
	if d.ProviderTimeout <= 0 {
		d.ProviderTimeout = 10 * time.Second
	}
	return &Processor{
		tx:              d.Tx,
		sessions:        d.Sessions,
		ledger:          d.Ledger,
		claims:          d.Claims,
		events:          d.Events,
		provider:        d.Provider,
		verifier:        d.Verifier,
		notifier:        d.Notifier,
		metrics:         d.Metrics,
		clock:           d.Clock,
		logger:          logging.Component(d.Logger, "settlement"),
		providerTimeout: d.ProviderTimeout,
	}
}

// HandleWebhook authenticates a provider delivery and applies it. The payload
// is not decoded before the signature checks out. A returned error means the
// delivery should be answered non-2xx so the provider redelivers it.
func (p *Processor) HandleWebhook(ctx context.Context, payload []byte, signature string) (Result, error) {
	evt, err := p.verifier.ConstructEvent(payload, signature)
	if err != nil {
		if errors.Is(err, provider.ErrSignatureInvalid) {
			p.metrics.ObserveWebhookEvent("", "signature_invalid")
			p.logger.Warn("webhook rejected", slog.String("reason", err.Error()))
			return Result{}, err
		}
		p.metrics.ObserveWebhookEvent("", "malformed")
		p.logger.Warn("webhook payload malformed", slog.String("error", err.Error()))
		return Result{}, err
	}

	eventKey := idempotency.EventKey(evt.ID)
	if p.events != nil {
		seen, err := p.events.Seen(ctx, eventKey)
		switch {
		case err != nil:
			// The session claim still guards the credit.
			p.logger.Warn("event dedup unavailable", slog.String("event_id", evt.ID), slog.String("error", err.Error()))
		case seen:
			p.metrics.ObserveWebhookEvent(string(evt.Type), string(OutcomeDuplicateEvent))
			p.logger.Info("duplicate webhook event", slog.String("event_id", evt.ID), slog.String("type", string(evt.Type)))
			return Result{Outcome: OutcomeDuplicateEvent}, nil
		}
	}

	res, err := p.dispatch(ctx, evt)
	if err != nil {
		p.metrics.ObserveWebhookEvent(string(evt.Type), "error")
		p.logger.Error("webhook processing failed",
			slog.String("event_id", evt.ID),
			slog.String("type", string(evt.Type)),
			slog.String("error", err.Error()))
		return res, err
	}

	// Recorded only once the work committed; a crash before this point leaves
	// the event unmarked and the redelivery is processed.
	if p.events != nil {
		if _, err := p.events.Claim(ctx, eventKey); err != nil {
			p.logger.Warn("record webhook event", slog.String("event_id", evt.ID), slog.String("error", err.Error()))
		}
	}
	p.metrics.ObserveWebhookEvent(string(evt.Type), string(res.Outcome))
	return res, nil
}

func (p *Processor) dispatch(ctx context.Context, evt provider.Event) (Result, error) {
	switch evt.Type {
	case provider.EventCheckoutCompleted, provider.EventCheckoutAsyncPaymentOK:
		cs, err := evt.CheckoutSession()
		if err != nil {
			return Result{}, err
		}
		s, err := p.sessions.GetSession(ctx, cs.ID)
		if err != nil {
			return Result{ExternalSessionID: cs.ID}, err
		}
		res, err := p.settle(ctx, metrics.SourceWebhook, s, cs)
		switch {
		case errors.Is(err, ErrPaymentNotCompleted):
			// Delayed payment methods report completed before the money
			// arrives; async_payment_succeeded follows.
			p.logger.Info("checkout completed, awaiting payment",
				slog.String("external_session_id", cs.ID),
				slog.String("payment_status", string(cs.PaymentStatus)))
			return Result{ExternalSessionID: cs.ID, Outcome: OutcomeAwaitingPayment}, nil
		case errors.Is(err, ErrSessionClosed):
			return Result{ExternalSessionID: cs.ID, Outcome: OutcomeIgnored}, nil
		}
		return res, err

	case provider.EventCheckoutExpired:
		return p.close(ctx, evt, p.sessions.Cancel, OutcomeCanceled)

	case provider.EventCheckoutAsyncPaymentFailed:
		return p.close(ctx, evt, p.sessions.Fail, OutcomeFailed)

	default:
		p.logger.Debug("webhook event ignored", slog.String("event_id", evt.ID), slog.String("type", string(evt.Type)))
		return Result{Outcome: OutcomeIgnored}, nil
	}
}

func (p *Processor) close(ctx context.Context, evt provider.Event, transition func(context.Context, string) (topup.Session, error), outcome Outcome) (Result, error) {
	cs, err := evt.CheckoutSession()
	if err != nil {
		return Result{}, err
	}
	s, err := transition(ctx, cs.ID)
	switch {
	case err == nil:
		return Result{ExternalSessionID: cs.ID, Outcome: outcome, Amount: s.Amount, Currency: s.Currency}, nil
	case errors.Is(err, topup.ErrSessionNotPending), errors.Is(err, topup.ErrSessionNotFound):
		p.logger.Info("close event has nothing to close",
			slog.String("external_session_id", cs.ID),
			slog.String("type", string(evt.Type)),
			slog.String("reason", err.Error()))
		return Result{ExternalSessionID: cs.ID, Outcome: OutcomeIgnored}, nil
	default:
		return Result{ExternalSessionID: cs.ID}, err
	}
}

// VerifyInput is a client's post-redirect poll.
type VerifyInput struct {
	ExternalSessionID string
	// CallerID must own the session. Empty skips the check.
	CallerID string
}

// Verify re-fetches the authoritative payment status from the provider and
// settles the session if it is paid.
func (p *Processor) Verify(ctx context.Context, in VerifyInput) (Result, error) {
	s, err := p.sessions.GetSession(ctx, in.ExternalSessionID)
	if err != nil {
		p.metrics.ObserveSettlement(metrics.SourceVerify, "not_found", 0)
		return Result{}, err
	}
	if in.CallerID != "" && s.OwnerID != in.CallerID {
		p.metrics.ObserveSettlement(metrics.SourceVerify, "not_found", 0)
		return Result{}, ErrSessionNotFound
	}

	if s.Status == topup.StatusCompleted {
		res, err := p.alreadySettled(ctx, s)
		if err != nil {
			return Result{}, err
		}
		p.metrics.ObserveSettlement(metrics.SourceVerify, string(res.Outcome), 0)
		return res, nil
	}

	pctx, cancel := context.WithTimeout(ctx, p.providerTimeout)
	cs, err := p.provider.GetCheckoutSession(pctx, s.ExternalID)
	cancel()
	if err != nil {
		if errors.Is(err, provider.ErrNotFound) {
			p.logger.Error("session unknown to provider", slog.String("external_session_id", s.ExternalID))
			p.metrics.ObserveSettlement(metrics.SourceVerify, "not_found", 0)
			return Result{}, fmt.Errorf("%w: unknown to provider", ErrSessionNotFound)
		}
		p.metrics.ObserveSettlement(metrics.SourceVerify, "provider_unavailable", 0)
		if errors.Is(err, provider.ErrUnavailable) {
			return Result{}, err
		}
		return Result{}, fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	}

	return p.settle(ctx, metrics.SourceVerify, s, cs)
}

// settle confirms payment, then claims, completes and credits in one unit of
// work. Any failure before commit leaves the session pending and the wallet
// untouched.
func (p *Processor) settle(ctx context.Context, source string, s topup.Session, cs provider.CheckoutSession) (Result, error) {
	if !cs.Paid() {
		p.metrics.ObserveSettlement(source, "not_paid", 0)
		return Result{ExternalSessionID: s.ExternalID}, fmt.Errorf("%w: payment status %q", ErrPaymentNotCompleted, cs.PaymentStatus)
	}
	if cs.AmountTotal != 0 && cs.AmountTotal != s.Amount {
		p.logger.Warn("provider amount differs from session amount",
			slog.String("external_session_id", s.ExternalID),
			slog.Int64("session_amount", s.Amount),
			slog.Int64("provider_amount", cs.AmountTotal))
	}

	var (
		already    bool
		closed     topup.Status
		newBalance int64
	)
	err := p.tx.WithinTx(ctx, func(ctx context.Context) error {
		first, err := p.claims.Claim(ctx, idempotency.SessionKey(s.ExternalID))
		if err != nil {
			return err
		}
		if !first {
			already = true
			return nil
		}

		current, err := p.sessions.Complete(ctx, s.ExternalID)
		if err != nil {
			if !errors.Is(err, topup.ErrSessionNotPending) {
				return err
			}
			if current.Status == topup.StatusCompleted {
				already = true
				return nil
			}
			closed = current.Status
			return fmt.Errorf("%w: %s", ErrSessionClosed, current.Status)
		}

		if _, err := p.ledger.EnsureWallet(ctx, s.OwnerID); err != nil {
			return err
		}
		newBalance, err = p.ledger.ApplyDelta(ctx, ledger.Delta{
			Owner:     s.OwnerID,
			Amount:    s.Amount,
			Category:  ledger.CategoryTopup,
			SessionID: s.ID,
		})
		return err
	})
	if err != nil {
		if closed != "" {
			p.logger.Warn("payment reported for closed session, not credited",
				slog.String("external_session_id", s.ExternalID),
				slog.String("status", string(closed)),
				slog.Int64("amount", s.Amount))
			p.metrics.ObserveSettlement(source, "closed", 0)
			return Result{ExternalSessionID: s.ExternalID}, err
		}
		p.metrics.ObserveSettlement(source, "error", 0)
		return Result{ExternalSessionID: s.ExternalID}, fmt.Errorf("settle %s: %w", s.ExternalID, err)
	}

	if already {
		res, err := p.alreadySettled(ctx, s)
		if err != nil {
			return Result{}, err
		}
		p.metrics.ObserveSettlement(source, string(res.Outcome), 0)
		p.logger.Info("settlement skipped, already settled",
			slog.String("external_session_id", s.ExternalID),
			slog.String("source", source))
		return res, nil
	}

	p.metrics.ObserveSettlement(source, string(OutcomeCredited), s.Amount)
	p.logger.Info("topup settled",
		slog.String("external_session_id", s.ExternalID),
		slog.String("owner_id", s.OwnerID),
		slog.String("source", source),
		slog.Int64("amount", s.Amount),
		slog.Int64("new_balance", newBalance))
	p.notify(ctx, s)

	return Result{
		ExternalSessionID: s.ExternalID,
		Outcome:           OutcomeCredited,
		Credited:          true,
		NewBalance:        newBalance,
		Amount:            s.Amount,
		Currency:          s.Currency,
	}, nil
}

func (p *Processor) alreadySettled(ctx context.Context, s topup.Session) (Result, error) {
	res := Result{
		ExternalSessionID: s.ExternalID,
		Outcome:           OutcomeAlreadySettled,
		AlreadySettled:    true,
		Amount:            s.Amount,
		Currency:          s.Currency,
	}
	w, err := p.ledger.Wallet(ctx, s.OwnerID)
	switch {
	case err == nil:
		res.NewBalance = w.Balance
	case errors.Is(err, ledger.ErrWalletNotFound):
	default:
		return Result{}, fmt.Errorf("read balance: %w", err)
	}
	return res, nil
}

func (p *Processor) notify(ctx context.Context, s topup.Session) {
	if p.notifier == nil {
		return
	}
	err := p.notifier.Send(ctx, notification.Message{
		Kind:        notification.KindTopupSettled,
		Destination: s.OwnerID,
		Body:        fmt.Sprintf("Your wallet was topped up with %s %s", money.FormatMinor(s.Amount), s.Currency),
		Amount:      s.Amount,
		Reference:   s.ExternalID,
		OccurredAt:  p.clock.Now(),
	})
	if err != nil {
		p.logger.Warn("topup notification failed",
			slog.String("external_session_id", s.ExternalID),
			slog.String("error", err.Error()))
	}
}
