package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/topup-ledger/internal/history"
)

// RegisterWalletRoutes wires the caller's wallet and its history.
func RegisterWalletRoutes(r fiber.Router, h *history.Handler) {
	r.Get("/wallet", h.Wallet)
	r.Get("/wallet/transactions", h.Transactions)
	r.Get("/wallet/transfers", h.Transfers)
	r.Get("/wallet/summary", h.Summary)
}
