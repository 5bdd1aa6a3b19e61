package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/topup-ledger/internal/transfer"
)

// RegisterTransferRoutes wires wallet-to-wallet transfers.
func RegisterTransferRoutes(r fiber.Router, h *transfer.Handler, idempotency fiber.Handler) {
	r.Post("/transfers", idempotency, h.Create)
}
