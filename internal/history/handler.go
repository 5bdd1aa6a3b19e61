package history

import (
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/topup-ledger/internal/ledger"
	"github.com/congo-pay/topup-ledger/internal/money"
)

// Handler exposes the caller's wallet and its history.
type Handler struct {
	ledger ledger.Store
	reader Reader
}

// NewHandler constructs a wallet history handler.
func NewHandler(l ledger.Store, reader Reader) *Handler {
	return &Handler{ledger: l, reader: reader}
}

// Wallet returns the caller's wallet, creating an empty one on first use.
func (h *Handler) Wallet(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	if uid == "" {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	w, err := h.ledger.EnsureWallet(c.UserContext(), uid)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, "internal error")
	}
	return c.JSON(fiber.Map{
		"walletNumber":   w.Number,
		"balance":        w.Balance,
		"balanceDisplay": money.FormatMinor(w.Balance),
		"createdAt":      w.CreatedAt,
		"updatedAt":      w.UpdatedAt,
	})
}

func (h *Handler) Transactions(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	if uid == "" {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	txs, err := h.ledger.Transactions(c.UserContext(), uid, queryLimit(c))
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, "internal error")
	}
	out := make([]fiber.Map, 0, len(txs))
	for _, tx := range txs {
		item := fiber.Map{
			"id":            tx.ID,
			"type":          tx.Type,
			"category":      tx.Category,
			"amount":        tx.Amount,
			"amountDisplay": money.FormatMinor(tx.Amount),
			"createdAt":     tx.CreatedAt,
		}
		if tx.SessionID != "" {
			item["topupSessionId"] = tx.SessionID
		}
		if tx.TransferID != "" {
			item["transferId"] = tx.TransferID
		}
		out = append(out, item)
	}
	return c.JSON(fiber.Map{"transactions": out})
}

func (h *Handler) Transfers(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	if uid == "" {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	transfers, err := h.ledger.Transfers(c.UserContext(), uid, queryLimit(c))
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, "internal error")
	}
	out := make([]fiber.Map, 0, len(transfers))
	for _, t := range transfers {
		direction := "received"
		if t.SenderID == uid {
			direction = "sent"
		}
		out = append(out, fiber.Map{
			"id":            t.ID,
			"direction":     direction,
			"senderId":      t.SenderID,
			"recipientId":   t.RecipientID,
			"amount":        t.Amount,
			"amountDisplay": money.FormatMinor(t.Amount),
			"status":        t.Status,
			"description":   t.Description,
			"createdAt":     t.CreatedAt,
		})
	}
	return c.JSON(fiber.Map{"transfers": out})
}

func (h *Handler) Summary(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	if uid == "" {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	s, err := h.reader.Summary(c.UserContext(), uid)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, "internal error")
	}
	return c.JSON(s)
}

func queryLimit(c *fiber.Ctx) int {
	limit, _ := strconv.Atoi(c.Query("limit"))
	return limit
}
