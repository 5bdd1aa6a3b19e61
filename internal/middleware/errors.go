package middleware

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// ErrorHandler renders errors as {"error": message}. Only *fiber.Error
// messages reach the client; anything else becomes a generic 500.
func ErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status := http.StatusInternalServerError
		msg := "internal error"

		var fe *fiber.Error
		if errors.As(err, &fe) {
			status = fe.Code
			msg = fe.Message
		} else if logger != nil {
			requestID, _ := c.Locals(requestIDHeader).(string)
			logger.Error("unhandled error",
				slog.String("path", c.Path()),
				slog.String("request_id", requestID),
				slog.Any("error", err))
		}
		return c.Status(status).JSON(fiber.Map{"error": msg})
	}
}
