package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/fxwallet/internal/auth"
	"github.com/congo-pay/fxwallet/internal/config"
	"github.com/congo-pay/fxwallet/internal/identity"
)

func newTokens(t *testing.T, verified bool) (*auth.Service, string) {
	t.Helper()
	repo := identity.NewMemoryRepository()
	user := identity.User{ID: uuid.NewString(), Phone: "+2348020000000", Verified: verified, CreatedAt: time.Now()}
	require.NoError(t, repo.Create(context.Background(), user))
	svc := auth.NewService(config.Config{JWTSecret: "s3cret", AccessTokenTTL: time.Minute, RefreshTokenTTL: time.Hour}, repo)
	pair, err := svc.Login(user)
	require.NoError(t, err)
	return svc, pair.AccessToken
}

func guardedApp(tokens *auth.Service) *fiber.App {
	app := fiber.New()
	app.Get("/private", JWTAuth(tokens), RequireVerified(), func(c *fiber.Ctx) error {
		return c.SendString(auth.UserID(c))
	})
	return app
}

func getWithToken(t *testing.T, app *fiber.App, token string) int {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodGet, "/private", nil)
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	resp.Body.Close()
	return resp.StatusCode
}

func TestJWTAuthAndVerifiedGuard(t *testing.T) {
	tokens, token := newTokens(t, true)
	app := guardedApp(tokens)

	assert.Equal(t, fiber.StatusOK, getWithToken(t, app, token))
	assert.Equal(t, fiber.StatusUnauthorized, getWithToken(t, app, ""))
	assert.Equal(t, fiber.StatusUnauthorized, getWithToken(t, app, "not-a-jwt"))
}

func TestRequireVerifiedRejectsUnverifiedUsers(t *testing.T) {
	tokens, token := newTokens(t, false)
	assert.Equal(t, fiber.StatusForbidden, getWithToken(t, guardedApp(tokens), token))
}

func TestLoginRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { cache.Close() })

	app := fiber.New()
	app.Post("/login", LoginRateLimit(cache, 2), func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	attempt := func(phone string) int {
		req := httptest.NewRequest(fiber.MethodPost, "/login", strings.NewReader(`{"phone":"`+phone+`"}`))
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		resp, err := app.Test(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, fiber.StatusOK, attempt("+1"))
	assert.Equal(t, fiber.StatusOK, attempt("+1"))
	assert.Equal(t, fiber.StatusTooManyRequests, attempt("+1"))
	assert.Equal(t, fiber.StatusOK, attempt("+2"))

	mr.FastForward(time.Minute + time.Second)
	assert.Equal(t, fiber.StatusOK, attempt("+1"))
}

func TestRequestIDAndAudit(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	app := fiber.New()
	app.Use(RequestID(), Audit(logger))
	app.Get("/teapot", func(c *fiber.Ctx) error { return fiber.NewError(fiber.StatusTeapot, "short and stout") })

	req := httptest.NewRequest(fiber.MethodGet, "/teapot", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	resp, err := app.Test(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "req-42", resp.Header.Get(RequestIDHeader))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "WARN", line["level"])
	assert.Equal(t, "req-42", line["request_id"])
	assert.EqualValues(t, fiber.StatusTeapot, line["status"])

	resp, err = app.Test(httptest.NewRequest(fiber.MethodGet, "/teapot", nil))
	require.NoError(t, err)
	resp.Body.Close()
	assert.NotEmpty(t, resp.Header.Get(RequestIDHeader))
}
