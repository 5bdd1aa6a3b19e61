package provider

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/topup-ledger/internal/clock"
)

const testSecret = "whsec_test"

func TestWebhookVerifierAcceptsValidSignature(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	v := NewWebhookVerifier(testSecret, time.Minute, clock.NewFixed(now))

	payload, err := EventPayload("evt_1", EventCheckoutCompleted, CheckoutSession{ID: "cs_1", PaymentStatus: PaymentStatusPaid})
	require.NoError(t, err)

	evt, err := v.ConstructEvent(payload, Sign(payload, testSecret, now))
	require.NoError(t, err)
	assert.Equal(t, "evt_1", evt.ID)
	assert.Equal(t, EventCheckoutCompleted, evt.Type)

	cs, err := evt.CheckoutSession()
	require.NoError(t, err)
	assert.Equal(t, "cs_1", cs.ID)
	assert.True(t, cs.Paid())
}

func TestWebhookVerifierRejects(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed","data":{"object":{"id":"cs_1"}}}`)

	cases := map[string]struct {
		secret string
		header string
		body   []byte
	}{
		"missing header":   {secret: testSecret, header: "", body: payload},
		"wrong secret":     {secret: testSecret, header: Sign(payload, "other", now), body: payload},
		"tampered payload": {secret: testSecret, header: Sign(payload, testSecret, now), body: []byte(strings.Replace(string(payload), "cs_1", "cs_2", 1))},
		"stale timestamp":  {secret: testSecret, header: Sign(payload, testSecret, now.Add(-10*time.Minute)), body: payload},
		"future timestamp": {secret: testSecret, header: Sign(payload, testSecret, now.Add(10*time.Minute)), body: payload},
		"no v1":            {secret: testSecret, header: "t=1772366400", body: payload},
		"bad timestamp":    {secret: testSecret, header: "t=abc,v1=00", body: payload},
		"no secret":        {secret: "", header: Sign(payload, "", now), body: payload},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			v := NewWebhookVerifier(tc.secret, 5*time.Minute, clock.NewFixed(now))
			_, err := v.ConstructEvent(tc.body, tc.header)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrSignatureInvalid), err.Error())
		})
	}
}

func TestWebhookVerifierAcceptsAnyMatchingV1(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	v := NewWebhookVerifier(testSecret, time.Minute, clock.NewFixed(now))
	payload := []byte(`{"id":"evt_1","type":"checkout.session.expired","data":{"object":{"id":"cs_1"}}}`)

	good := Sign(payload, testSecret, now)
	header := good + ",v1=deadbeef"
	require.NoError(t, v.Verify(payload, header))
}

func TestConstructEventMalformedAfterValidSignature(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	v := NewWebhookVerifier(testSecret, time.Minute, clock.NewFixed(now))

	payload := []byte(`{"type":"checkout.session.completed"}`)
	_, err := v.ConstructEvent(payload, Sign(payload, testSecret, now))
	assert.True(t, errors.Is(err, ErrMalformedEvent))

	payload = []byte(`not json`)
	_, err = v.ConstructEvent(payload, Sign(payload, testSecret, now))
	assert.True(t, errors.Is(err, ErrMalformedEvent))
}

func TestEventCheckoutSessionRequiresCheckoutType(t *testing.T) {
	evt := Event{ID: "evt_1", Type: "charge.refunded"}
	_, err := evt.CheckoutSession()
	assert.True(t, errors.Is(err, ErrMalformedEvent))
}
