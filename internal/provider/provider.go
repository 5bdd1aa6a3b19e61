// Package provider talks to the external card-payment provider: hosted checkout
// sessions, status lookups and signed webhook events. The wire format follows
// the Stripe Checkout API.
package provider

//go:generate mockgen -source=provider.go -destination=mock_client.go -package=provider

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrUnavailable marks transient failures: timeouts, connection errors,
	// 429 and 5xx responses. Safe to retry.
	ErrUnavailable = errors.New("payment provider unavailable")

	// ErrNotFound is returned when the provider does not know the session id.
	ErrNotFound = errors.New("checkout session not found at provider")

	// ErrRejected wraps non-retryable 4xx responses.
	ErrRejected = errors.New("payment provider rejected request")

	// ErrSignatureInvalid is returned when a webhook signature is missing,
	// malformed, stale or does not match the shared secret.
	ErrSignatureInvalid = errors.New("webhook signature invalid")

	// ErrMalformedEvent is returned for authenticated payloads that do not
	// decode into a usable event.
	ErrMalformedEvent = errors.New("malformed webhook event")
)

// PaymentStatus is the provider's view of whether money was captured.
type PaymentStatus string

const (
	PaymentStatusPaid              PaymentStatus = "paid"
	PaymentStatusUnpaid            PaymentStatus = "unpaid"
	PaymentStatusNoPaymentRequired PaymentStatus = "no_payment_required"
)

// CheckoutRequest describes a hosted checkout to open for a wallet top-up.
type CheckoutRequest struct {
	ClientReferenceID string
	OwnerID           string
	Amount            int64
	Currency          string
	ProductName       string
	SuccessURL        string
	CancelURL         string
}

// CheckoutSession is the provider's checkout session object.
type CheckoutSession struct {
	ID                string            `json:"id"`
	Object            string            `json:"object"`
	URL               string            `json:"url"`
	Status            string            `json:"status"`
	PaymentStatus     PaymentStatus     `json:"payment_status"`
	AmountTotal       int64             `json:"amount_total"`
	Currency          string            `json:"currency"`
	ClientReferenceID string            `json:"client_reference_id"`
	Metadata          map[string]string `json:"metadata"`
}

// Paid reports whether the provider considers the session paid.
func (s CheckoutSession) Paid() bool {
	return s.PaymentStatus == PaymentStatusPaid
}

// Client is the subset of the provider API the service depends on.
type Client interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (CheckoutSession, error)
	GetCheckoutSession(ctx context.Context, id string) (CheckoutSession, error)
}

// Observer receives timings of outbound provider calls.
type Observer interface {
	ObserveProviderRequest(operation, outcome string, elapsed time.Duration)
}
