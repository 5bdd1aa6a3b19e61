package topup

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/topup-ledger/internal/money"
	"github.com/congo-pay/topup-ledger/internal/provider"
)

// Handler exposes checkout creation and session lookups.
type Handler struct {
	manager *Manager
}

// NewHandler constructs a topup handler.
func NewHandler(manager *Manager) *Handler {
	return &Handler{manager: manager}
}

type checkoutRequest struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

// Checkout opens a provider checkout for the caller.
func (h *Handler) Checkout(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	if uid == "" {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	var req checkoutRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	amount, err := money.ParseMinor(req.Amount)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "amount must be a positive decimal with at most two places")
	}

	res, err := h.manager.CreateSession(c.UserContext(), CreateInput{OwnerID: uid, Amount: amount, Currency: req.Currency})
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrUnsupportedCurrency):
			return fiber.NewError(http.StatusBadRequest, err.Error())
		case errors.Is(err, provider.ErrUnavailable):
			return fiber.NewError(http.StatusServiceUnavailable, "payment provider unavailable, retry later")
		default:
			return fiber.NewError(http.StatusInternalServerError, "internal error")
		}
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"sessionId":   res.ExternalSessionID,
		"checkoutUrl": res.CheckoutURL,
	})
}

// Get returns one of the caller's sessions.
func (h *Handler) Get(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	if uid == "" {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	s, err := h.manager.GetSession(c.UserContext(), c.Params("sessionId"))
	if err != nil || s.OwnerID != uid {
		if err == nil || errors.Is(err, ErrSessionNotFound) {
			return fiber.NewError(http.StatusNotFound, "topup session not found")
		}
		return fiber.NewError(http.StatusInternalServerError, "internal error")
	}
	return c.JSON(sessionView(s))
}

// List returns the caller's recent sessions.
func (h *Handler) List(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	if uid == "" {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	sessions, err := h.manager.ListSessions(c.UserContext(), uid, limit)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, "internal error")
	}
	out := make([]fiber.Map, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, sessionView(s))
	}
	return c.JSON(fiber.Map{"sessions": out})
}

func sessionView(s Session) fiber.Map {
	return fiber.Map{
		"sessionId":     s.ExternalID,
		"id":            s.ID,
		"amount":        s.Amount,
		"amountDisplay": money.FormatMinor(s.Amount),
		"currency":      s.Currency,
		"status":        s.Status,
		"checkoutUrl":   s.CheckoutURL,
		"createdAt":     s.CreatedAt,
		"updatedAt":     s.UpdatedAt,
	}
}
