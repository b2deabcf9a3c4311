package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const loginRateLimitPrefix = "rl:login:"

// LoginRateLimit limits login attempts per phone or IP using Redis if available.
func LoginRateLimit(cache *redis.Client, maxPerMin int) fiber.Handler {
	if maxPerMin <= 0 {
		maxPerMin = 5
	}
	return func(c *fiber.Ctx) error {
		if cache == nil {
			return c.Next()
		}
		var req struct {
			Phone string `json:"phone"`
		}
		_ = c.BodyParser(&req)
		subject := strings.TrimSpace(req.Phone)
		if subject == "" {
			subject = c.IP()
		}
		key := loginRateLimitPrefix + subject

		ctx := c.UserContext()
		count, err := cache.Incr(ctx, key).Result()
		if err != nil {
			// fail open
			return c.Next()
		}
		if count == 1 {
			cache.Expire(ctx, key, time.Minute)
		}
		if count > int64(maxPerMin) {
			return fiber.NewError(http.StatusTooManyRequests, "too many login attempts, try again later")
		}
		return c.Next()
	}
}
