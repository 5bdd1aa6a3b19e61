package settlement

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/topup-ledger/internal/money"
	"github.com/congo-pay/topup-ledger/internal/provider"
)

// Handler exposes the webhook receiver and the verification endpoint.
type Handler struct {
	processor *Processor
}

// NewHandler constructs a settlement handler.
func NewHandler(processor *Processor) *Handler {
	return &Handler{processor: processor}
}

// Webhook receives provider deliveries. Anything but 2xx makes the provider
// redeliver.
func (h *Handler) Webhook(c *fiber.Ctx) error {
	payload := append([]byte(nil), c.Body()...)
	if _, err := h.processor.HandleWebhook(c.UserContext(), payload, c.Get(provider.SignatureHeader)); err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"received": true})
}

type verifyRequest struct {
	SessionID string `json:"sessionId"`
}

// Verify settles a session after the checkout redirect.
func (h *Handler) Verify(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	if uid == "" {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	var req verifyRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	req.SessionID = strings.TrimSpace(req.SessionID)
	if req.SessionID == "" {
		return fiber.NewError(http.StatusBadRequest, "sessionId is required")
	}

	res, err := h.processor.Verify(c.UserContext(), VerifyInput{ExternalSessionID: req.SessionID, CallerID: uid})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(fiber.Map{
		"success":           true,
		"sessionId":         res.ExternalSessionID,
		"alreadySettled":    res.AlreadySettled,
		"newBalance":        res.NewBalance,
		"newBalanceDisplay": money.FormatMinor(res.NewBalance),
	})
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrSignatureInvalid):
		return fiber.NewError(http.StatusBadRequest, "invalid webhook signature")
	case errors.Is(err, ErrMalformedEvent):
		return fiber.NewError(http.StatusBadRequest, "malformed webhook event")
	case errors.Is(err, ErrSessionNotFound):
		return fiber.NewError(http.StatusNotFound, "topup session not found")
	case errors.Is(err, ErrPaymentNotCompleted):
		return fiber.NewError(http.StatusConflict, "payment not completed yet")
	case errors.Is(err, ErrSessionClosed):
		return fiber.NewError(http.StatusConflict, "topup session is closed")
	case errors.Is(err, ErrProviderUnavailable):
		return fiber.NewError(http.StatusServiceUnavailable, "payment provider unavailable, retry later")
	default:
		return fiber.NewError(http.StatusInternalServerError, "internal error")
	}
}
