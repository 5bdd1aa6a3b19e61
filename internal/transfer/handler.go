package transfer

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/topup-ledger/internal/money"
)

// Handler exposes the transfer endpoint.
type Handler struct {
	coordinator *Coordinator
}

// NewHandler constructs a transfer handler.
func NewHandler(coordinator *Coordinator) *Handler {
	return &Handler{coordinator: coordinator}
}

type transferRequest struct {
	RecipientIdentifier string `json:"recipientIdentifier"`
	// Amount is a decimal string in major units, e.g. "25.00".
	Amount      string `json:"amount"`
	Description string `json:"description"`
}

// Create moves funds from the caller to a recipient.
func (h *Handler) Create(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	if uid == "" {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	var req transferRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	amount, err := money.ParseMinor(req.Amount)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "amount must be a positive decimal with at most two places")
	}

	res, err := h.coordinator.Transfer(c.UserContext(), Input{
		SenderID:            uid,
		RecipientIdentifier: req.RecipientIdentifier,
		Amount:              amount,
		Description:         req.Description,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrInsufficientFunds):
			return fiber.NewError(http.StatusUnprocessableEntity, "insufficient funds")
		case errors.Is(err, ErrRecipientNotFound):
			return fiber.NewError(http.StatusNotFound, "recipient not found")
		case errors.Is(err, ErrSelfTransfer):
			return fiber.NewError(http.StatusBadRequest, "cannot transfer to your own wallet")
		case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrDescriptionLength):
			return fiber.NewError(http.StatusBadRequest, err.Error())
		default:
			return fiber.NewError(http.StatusInternalServerError, "internal error")
		}
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"success":                    true,
		"transferId":                 res.Transfer.ID,
		"amount":                     money.FormatMinor(res.Transfer.Amount),
		"recipientId":                res.Transfer.RecipientID,
		"senderNewBalance":           res.SenderBalance,
		"senderNewBalanceDisplay":    money.FormatMinor(res.SenderBalance),
		"recipientNewBalance":        res.RecipientBalance,
		"recipientNewBalanceDisplay": money.FormatMinor(res.RecipientBalance),
		"createdAt":                  res.Transfer.CreatedAt,
	})
}
