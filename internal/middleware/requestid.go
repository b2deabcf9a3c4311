package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// RequestIDHeader carries the per-request trace identifier in both directions.
const RequestIDHeader = "X-Request-ID"

// RequestID reuses the caller's X-Request-ID or mints one, echoes it on the response and
// stores it in locals for handlers and the audit log.
func RequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		reqID := c.Get(RequestIDHeader)
		if reqID == "" || len(reqID) > 128 {
			reqID = uuid.NewString()
		}
		c.Set(RequestIDHeader, reqID)
		c.Locals(RequestIDHeader, reqID)
		return c.Next()
	}
}

// RequestIDOf returns the identifier assigned by RequestID.
func RequestIDOf(c *fiber.Ctx) string {
	id, _ := c.Locals(RequestIDHeader).(string)
	return id
}
