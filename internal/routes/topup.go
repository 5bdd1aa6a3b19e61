package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/topup-ledger/internal/settlement"
	"github.com/congo-pay/topup-ledger/internal/topup"
)

type topupLimits struct {
	idempotency fiber.Handler
	checkout    fiber.Handler
	verify      fiber.Handler
}

// RegisterTopupRoutes wires checkout creation, session lookup and verification.
func RegisterTopupRoutes(r fiber.Router, h *topup.Handler, s *settlement.Handler, mw topupLimits) {
	r.Post("/topups/checkout", mw.checkout, mw.idempotency, h.Checkout)
	r.Post("/topups/verify", mw.verify, s.Verify)
	r.Get("/topups", h.List)
	r.Get("/topups/:sessionId", h.Get)
}

// RegisterWebhookRoutes wires the provider webhook receiver. It sits outside
// caller auth; deliveries authenticate by signature.
func RegisterWebhookRoutes(app *fiber.App, s *settlement.Handler) {
	app.Post("/webhooks/provider", s.Webhook)
}
