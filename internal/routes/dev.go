package routes

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/topup-ledger/internal/middleware"
	"github.com/congo-pay/topup-ledger/internal/provider"
)

const devTokenTTL = 12 * time.Hour

// RegisterDevRoutes adds helpers for local runs: minting caller tokens and,
// with the sandbox provider, completing a checkout without a browser.
func RegisterDevRoutes(r fiber.Router, secret string, sandbox *provider.Sandbox) {
	dev := r.Group("/dev")
	dev.Post("/token", func(c *fiber.Ctx) error {
		var req struct {
			Subject string `json:"subject"`
		}
		if err := c.BodyParser(&req); err != nil || strings.TrimSpace(req.Subject) == "" {
			return fiber.NewError(http.StatusBadRequest, "subject is required")
		}
		token, err := middleware.SignCallerToken(secret, strings.TrimSpace(req.Subject), devTokenTTL)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"token": token, "expiresIn": int(devTokenTTL.Seconds())})
	})

	if sandbox == nil {
		return
	}
	dev.Post("/sandbox/sessions/:sessionId/pay", func(c *fiber.Ctx) error {
		cs, err := sandbox.MarkPaid(c.Params("sessionId"))
		if errors.Is(err, provider.ErrNotFound) {
			return fiber.NewError(http.StatusNotFound, "checkout session not found")
		}
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"sessionId": cs.ID, "paymentStatus": cs.PaymentStatus})
	})
}
