// Package transport holds the fiber app-level plumbing shared by every
// route group.
package transport

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/pulseline/broadcast-engine/internal/observability"
)

// ErrorHandler renders every handler error as a JSON body. Domain errors
// arrive here already mapped to *fiber.Error; anything else is a 500 and
// its detail stays in the log, not the response.
func ErrorHandler(logger *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		message := "internal server error"
		if e, ok := err.(*fiber.Error); ok {
			code = e.Code
			message = e.Message
		}

		log := observability.WithContextLogger(logger, c.UserContext())

		log.Error("request error",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", code),
			zap.Error(err),
		)

		return c.Status(code).JSON(fiber.Map{
			"error": message,
		})
	}
}
