package settlement

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/topup-ledger/internal/provider"
	"github.com/congo-pay/topup-ledger/internal/topup"
)

func newHandlerApp(f *fixture, caller string) *fiber.App {
	app := fiber.New()
	h := NewHandler(f.proc)
	app.Post("/webhooks/provider", h.Webhook)
	app.Post("/api/v1/topups/verify", func(c *fiber.Ctx) error {
		if caller != "" {
			c.Locals("user_id", caller)
		}
		return c.Next()
	}, h.Verify)
	return app
}

func TestWebhookEndpoint(t *testing.T) {
	f := newFixture(t)
	s := f.createSession(t, "alice", 5000)
	cs := f.markPaid(t, s.ExternalID)
	app := newHandlerApp(f, "")

	payload, err := provider.EventPayload("evt_http", provider.EventCheckoutCompleted, cs)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/provider", bytes.NewReader(payload))
	req.Header.Set(provider.SignatureHeader, provider.Sign(payload, "not-the-secret", f.clock.Now()))
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, topup.StatusPending, f.status(t, s.ExternalID))

	for i := 0; i < 2; i++ {
		req = httptest.NewRequest(http.MethodPost, "/webhooks/provider", bytes.NewReader(payload))
		req.Header.Set(provider.SignatureHeader, provider.Sign(payload, webhookSecret, f.clock.Now()))
		resp, err = app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}
	assert.EqualValues(t, 5000, f.balance(t, "alice"))
}

func TestVerifyEndpoint(t *testing.T) {
	f := newFixture(t)
	s := f.createSession(t, "bob", 2500)

	post := func(app *fiber.App, body string) *http.Response {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/topups/verify", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp
	}

	assert.Equal(t, http.StatusUnauthorized, post(newHandlerApp(f, ""), `{"sessionId":"x"}`).StatusCode)

	app := newHandlerApp(f, "bob")
	assert.Equal(t, http.StatusBadRequest, post(app, `{}`).StatusCode)
	assert.Equal(t, http.StatusNotFound, post(app, `{"sessionId":"cs_nope"}`).StatusCode)
	assert.Equal(t, http.StatusConflict, post(app, `{"sessionId":"`+s.ExternalID+`"}`).StatusCode)

	f.markPaid(t, s.ExternalID)
	resp := post(app, `{"sessionId":"`+s.ExternalID+`"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw, _ := io.ReadAll(resp.Body)
	var body struct {
		Success           bool   `json:"success"`
		AlreadySettled    bool   `json:"alreadySettled"`
		NewBalance        int64  `json:"newBalance"`
		NewBalanceDisplay string `json:"newBalanceDisplay"`
	}
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.True(t, body.Success)
	assert.False(t, body.AlreadySettled)
	assert.EqualValues(t, 2500, body.NewBalance)
	assert.Equal(t, "25.00", body.NewBalanceDisplay)

	f.sandbox.SetUnavailable(true)
	resp = post(app, `{"sessionId":"`+s.ExternalID+`"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode, "completed sessions answer without calling the provider")
}
