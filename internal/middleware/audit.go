package middleware

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/fxwallet/internal/auth"
)

// Audit writes one structured line per request. Server errors log at error level, client
// errors at warn, everything else at info.
func Audit(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if fe, ok := err.(*fiber.Error); ok {
			status = fe.Code
		} else if err != nil {
			status = fiber.StatusInternalServerError
		}

		attrs := []slog.Attr{
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.Int("status", status),
			slog.Duration("duration", time.Since(start)),
		}
		if reqID := RequestIDOf(c); reqID != "" {
			attrs = append(attrs, slog.String("request_id", reqID))
		}
		if userID := auth.UserID(c); userID != "" {
			attrs = append(attrs, slog.String("user_id", userID))
		}
		if key := c.Get(IdempotencyKeyHeader); key != "" {
			attrs = append(attrs, slog.String("idempotency_key", key))
		}
		if err != nil {
			attrs = append(attrs, slog.Any("error", err))
		}

		level := slog.LevelInfo
		switch {
		case status >= fiber.StatusInternalServerError:
			level = slog.LevelError
		case status >= fiber.StatusBadRequest:
			level = slog.LevelWarn
		}
		logger.LogAttrs(c.UserContext(), level, "request completed", attrs...)
		return err
	}
}
