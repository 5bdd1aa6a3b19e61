package provider

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/congo-pay/topup-ledger/internal/clock"
)

// SignatureHeader carries "t=<unix>,v1=<hex hmac>" on webhook deliveries.
const SignatureHeader = "Stripe-Signature"

// DefaultTolerance bounds the age of a signed webhook timestamp.
const DefaultTolerance = 5 * time.Minute

// EventType names a provider event.
type EventType string

const (
	EventCheckoutCompleted          EventType = "checkout.session.completed"
	EventCheckoutAsyncPaymentOK     EventType = "checkout.session.async_payment_succeeded"
	EventCheckoutAsyncPaymentFailed EventType = "checkout.session.async_payment_failed"
	EventCheckoutExpired            EventType = "checkout.session.expired"
)

// Event is a verified webhook delivery. Data.Object is decoded on demand
// according to Type.
type Event struct {
	ID      string    `json:"id"`
	Object  string    `json:"object"`
	Type    EventType `json:"type"`
	Created int64     `json:"created"`
	Data    struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// IsCheckout reports whether the event carries a checkout session object.
func (e Event) IsCheckout() bool {
	return strings.HasPrefix(string(e.Type), "checkout.session.")
}

// CheckoutSession decodes the embedded checkout session.
func (e Event) CheckoutSession() (CheckoutSession, error) {
	if !e.IsCheckout() {
		return CheckoutSession{}, fmt.Errorf("%w: %s does not carry a checkout session", ErrMalformedEvent, e.Type)
	}
	var s CheckoutSession
	if err := json.Unmarshal(e.Data.Object, &s); err != nil {
		return CheckoutSession{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if s.ID == "" {
		return CheckoutSession{}, fmt.Errorf("%w: checkout session id missing", ErrMalformedEvent)
	}
	return s, nil
}

// WebhookVerifier authenticates webhook payloads against the shared secret.
type WebhookVerifier struct {
	secret    []byte
	tolerance time.Duration
	clock     clock.Clock
}

// NewWebhookVerifier builds a verifier. An empty secret rejects everything.
func NewWebhookVerifier(secret string, tolerance time.Duration, clk clock.Clock) *WebhookVerifier {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &WebhookVerifier{secret: []byte(secret), tolerance: tolerance, clock: clk}
}

// Verify checks the signature header over the raw payload.
func (v *WebhookVerifier) Verify(payload []byte, header string) error {
	if len(v.secret) == 0 {
		return fmt.Errorf("%w: no webhook secret configured", ErrSignatureInvalid)
	}

	ts, signatures, err := parseSignatureHeader(header)
	if err != nil {
		return err
	}

	age := v.clock.Now().Sub(time.Unix(ts, 0))
	if age > v.tolerance || age < -v.tolerance {
		return fmt.Errorf("%w: timestamp outside tolerance", ErrSignatureInvalid)
	}

	expected := computeSignature(v.secret, ts, payload)
	for _, sig := range signatures {
		if hmac.Equal(expected, sig) {
			return nil
		}
	}
	return fmt.Errorf("%w: no matching signature", ErrSignatureInvalid)
}

// ConstructEvent verifies the payload and only then decodes it.
func (v *WebhookVerifier) ConstructEvent(payload []byte, header string) (Event, error) {
	if err := v.Verify(payload, header); err != nil {
		return Event{}, err
	}
	var evt Event
	if err := json.Unmarshal(payload, &evt); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if evt.ID == "" || evt.Type == "" {
		return Event{}, fmt.Errorf("%w: id and type are required", ErrMalformedEvent)
	}
	return evt, nil
}

// Sign produces a signature header for payload. The sandbox provider and tests
// use it to emit deliveries the verifier accepts.
func Sign(payload []byte, secret string, at time.Time) string {
	ts := at.Unix()
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(computeSignature([]byte(secret), ts, payload)))
}

func computeSignature(secret []byte, ts int64, payload []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(strconv.FormatInt(ts, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	return mac.Sum(nil)
}

func parseSignatureHeader(header string) (int64, [][]byte, error) {
	if header == "" {
		return 0, nil, fmt.Errorf("%w: missing %s header", ErrSignatureInvalid, SignatureHeader)
	}

	var (
		ts     int64
		haveTS bool
		sigs   [][]byte
	)
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch key {
		case "t":
			parsed, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return 0, nil, fmt.Errorf("%w: bad timestamp", ErrSignatureInvalid)
			}
			ts, haveTS = parsed, true
		case "v1":
			sig, err := hex.DecodeString(value)
			if err != nil {
				continue
			}
			sigs = append(sigs, sig)
		}
	}
	if !haveTS {
		return 0, nil, fmt.Errorf("%w: missing timestamp", ErrSignatureInvalid)
	}
	if len(sigs) == 0 {
		return 0, nil, fmt.Errorf("%w: missing v1 signature", ErrSignatureInvalid)
	}
	return ts, sigs, nil
}
