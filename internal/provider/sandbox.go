package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Sandbox is an in-process provider used for development runs and tests. It
// issues checkout sessions, lets callers mark them paid, and can simulate an
// outage.
type Sandbox struct {
	mu          sync.Mutex
	sessions    map[string]CheckoutSession
	unavailable bool
	checkoutURL string
}

// NewSandbox builds a sandbox provider whose checkout URLs start with baseURL.
func NewSandbox(baseURL string) *Sandbox {
	if baseURL == "" {
		baseURL = "https://checkout.sandbox.local/pay/"
	}
	return &Sandbox{sessions: make(map[string]CheckoutSession), checkoutURL: baseURL}
}

func (s *Sandbox) CreateCheckoutSession(_ context.Context, req CheckoutRequest) (CheckoutSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unavailable {
		return CheckoutSession{}, fmt.Errorf("%w: sandbox offline", ErrUnavailable)
	}
	for _, existing := range s.sessions {
		if existing.ClientReferenceID == req.ClientReferenceID {
			return existing, nil
		}
	}

	id := "cs_test_" + uuid.NewString()
	cs := CheckoutSession{
		ID:                id,
		Object:            "checkout.session",
		URL:               s.checkoutURL + id,
		Status:            "open",
		PaymentStatus:     PaymentStatusUnpaid,
		AmountTotal:       req.Amount,
		Currency:          req.Currency,
		ClientReferenceID: req.ClientReferenceID,
		Metadata:          map[string]string{"owner_id": req.OwnerID},
	}
	s.sessions[id] = cs
	return cs, nil
}

func (s *Sandbox) GetCheckoutSession(_ context.Context, id string) (CheckoutSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unavailable {
		return CheckoutSession{}, fmt.Errorf("%w: sandbox offline", ErrUnavailable)
	}
	cs, ok := s.sessions[id]
	if !ok {
		return CheckoutSession{}, ErrNotFound
	}
	return cs, nil
}

// MarkPaid completes the checkout as if the customer paid.
func (s *Sandbox) MarkPaid(id string) (CheckoutSession, error) {
	return s.update(id, func(cs *CheckoutSession) {
		cs.Status = "complete"
		cs.PaymentStatus = PaymentStatusPaid
	})
}

// MarkExpired closes the checkout without payment.
func (s *Sandbox) MarkExpired(id string) (CheckoutSession, error) {
	return s.update(id, func(cs *CheckoutSession) {
		cs.Status = "expired"
	})
}

// SetUnavailable toggles a simulated outage.
func (s *Sandbox) SetUnavailable(down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unavailable = down
}

func (s *Sandbox) update(id string, fn func(*CheckoutSession)) (CheckoutSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cs, ok := s.sessions[id]
	if !ok {
		return CheckoutSession{}, ErrNotFound
	}
	fn(&cs)
	s.sessions[id] = cs
	return cs, nil
}

// EventPayload renders a webhook body of the given type wrapping cs.
func EventPayload(eventID string, typ EventType, cs CheckoutSession) ([]byte, error) {
	object, err := json.Marshal(cs)
	if err != nil {
		return nil, err
	}
	evt := Event{ID: eventID, Object: "event", Type: typ}
	evt.Data.Object = object
	return json.Marshal(evt)
}
