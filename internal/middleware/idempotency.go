package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/fxwallet/internal/auth"
)

const (
	// IdempotencyKeyHeader carries the client's operation key.
	IdempotencyKeyHeader = "Idempotency-Key"
	idempotencyPrefix    = "idempotency:v2:"
	inProgressMarker     = "__in_progress__"
	storeTimeout         = 2 * time.Second
)

type storedResponse struct {
	Route   string            `json:"route"`
	Status  int               `json:"status"`
	Body    string            `json:"body"`
	Headers map[string]string `json:"headers"`
}

// Idempotency replays the first response recorded for an Idempotency-Key, per user and
// route. Requests without the header pass through; the wallet engine still guards them
// with its own generated key. Server errors are not recorded so the client may retry.
func Idempotency(cache *redis.Client, ttl time.Duration, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		switch strings.ToUpper(c.Method()) {
		case fiber.MethodGet, fiber.MethodHead, fiber.MethodOptions:
			return c.Next()
		}

		key := strings.TrimSpace(c.Get(IdempotencyKeyHeader))
		if key == "" {
			return c.Next()
		}
		route := c.Method() + " " + c.Path()
		cacheKey := idempotencyPrefix + auth.UserID(c) + ":" + key

		ctx, cancel := context.WithTimeout(c.UserContext(), storeTimeout)
		defer cancel()

		cached, err := cache.Get(ctx, cacheKey).Result()
		switch {
		case err == nil:
			return replay(c, cached, route, key, logger)
		case !errors.Is(err, redis.Nil):
			logger.Error("idempotency lookup failed", slog.String("key", key), slog.Any("error", err))
			return fiber.NewError(fiber.StatusServiceUnavailable, "idempotency store failure")
		}

		reserved, err := cache.SetNX(ctx, cacheKey, inProgressMarker, ttl).Result()
		if err != nil {
			logger.Error("idempotency reservation failed", slog.String("key", key), slog.Any("error", err))
			return fiber.NewError(fiber.StatusServiceUnavailable, "idempotency reservation failure")
		}
		if !reserved {
			return fiber.NewError(fiber.StatusConflict, "duplicate request currently processing")
		}

		if err := c.Next(); err != nil {
			release(cache, cacheKey)
			return err
		}

		status := c.Response().StatusCode()
		if status >= fiber.StatusInternalServerError {
			release(cache, cacheKey)
			return nil
		}

		stored := storedResponse{
			Route:   route,
			Status:  status,
			Body:    string(c.Response().Body()),
			Headers: map[string]string{},
		}
		c.Response().Header.VisitAll(func(k, v []byte) {
			stored.Headers[string(k)] = string(v)
		})

		payload, err := json.Marshal(stored)
		if err != nil {
			logger.Error("failed to encode idempotent response", slog.String("key", key), slog.Any("error", err))
			release(cache, cacheKey)
			return nil
		}

		persistCtx, persistCancel := context.WithTimeout(context.Background(), storeTimeout)
		defer persistCancel()
		if err := cache.Set(persistCtx, cacheKey, payload, ttl).Err(); err != nil {
			// the response already went through; only the replay copy is lost
			logger.Error("failed to persist idempotent response", slog.String("key", key), slog.Any("error", err))
			cache.Del(persistCtx, cacheKey)
		}
		return nil
	}
}

func replay(c *fiber.Ctx, cached, route, key string, logger *slog.Logger) error {
	if cached == inProgressMarker {
		return fiber.NewError(fiber.StatusConflict, "duplicate request currently processing")
	}

	var stored storedResponse
	if err := json.Unmarshal([]byte(cached), &stored); err != nil {
		logger.Warn("failed to decode stored idempotent response", slog.String("key", key), slog.Any("error", err))
		return fiber.NewError(fiber.StatusConflict, "duplicate request")
	}
	if stored.Route != route {
		return fiber.NewError(fiber.StatusUnprocessableEntity, "Idempotency-Key was already used for a different request")
	}

	for header, value := range stored.Headers {
		if strings.EqualFold(header, fiber.HeaderContentLength) {
			continue
		}
		c.Set(header, value)
	}
	c.Set("Idempotent-Replayed", "true")
	return c.Status(stored.Status).SendString(stored.Body)
}

func release(cache *redis.Client, cacheKey string) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	cache.Del(ctx, cacheKey)
}
