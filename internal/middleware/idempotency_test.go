package middleware

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/fxwallet/internal/auth"
	"github.com/congo-pay/fxwallet/internal/logging"
)

type testApp struct {
	app   *fiber.App
	mr    *miniredis.Miniredis
	calls *atomic.Int32
}

func setupTestApp(t *testing.T) testApp {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}

	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	calls := &atomic.Int32{}
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals(auth.LocalUserID, c.Get("X-Test-User", "user-1"))
		return c.Next()
	})
	app.Use(Idempotency(cache, time.Minute, logging.Discard()))
	app.Post("/resource", func(c *fiber.Ctx) error {
		n := calls.Add(1)
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"ok": true, "call": n})
	})
	app.Post("/other", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	app.Post("/broken", func(c *fiber.Ctx) error {
		calls.Add(1)
		return c.SendStatus(fiber.StatusInternalServerError)
	})

	t.Cleanup(func() {
		cache.Close()
		mr.Close()
	})
	return testApp{app: app, mr: mr, calls: calls}
}

func post(t *testing.T, app *fiber.App, path, key, user string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, path, strings.NewReader("{}"))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if key != "" {
		req.Header.Set(IdempotencyKeyHeader, key)
	}
	if user != "" {
		req.Header.Set("X-Test-User", user)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, string(body)
}

func TestIdempotencyWithoutHeaderPassesThrough(t *testing.T) {
	ta := setupTestApp(t)

	status, _ := post(t, ta.app, "/resource", "", "")
	if status != fiber.StatusCreated {
		t.Fatalf("expected %d got %d", fiber.StatusCreated, status)
	}
	post(t, ta.app, "/resource", "", "")
	if ta.calls.Load() != 2 {
		t.Fatalf("expected handler to run twice, ran %d", ta.calls.Load())
	}
}

func TestIdempotencyReturnsCachedResponse(t *testing.T) {
	ta := setupTestApp(t)

	status, payload := post(t, ta.app, "/resource", "abc123", "")
	if status != fiber.StatusCreated {
		t.Fatalf("expected status %d got %d", fiber.StatusCreated, status)
	}

	status, cachedPayload := post(t, ta.app, "/resource", "abc123", "")
	if status != fiber.StatusCreated {
		t.Fatalf("expected cached status %d got %d", fiber.StatusCreated, status)
	}
	if cachedPayload != payload {
		t.Fatalf("expected cached payload %s got %s", payload, cachedPayload)
	}
	if ta.calls.Load() != 1 {
		t.Fatalf("expected handler to run once, ran %d", ta.calls.Load())
	}

	var decoded map[string]any
	if err := json.Unmarshal([]byte(cachedPayload), &decoded); err != nil {
		t.Fatalf("cached payload invalid json: %v", err)
	}
}

func TestIdempotencyKeysAreScopedPerUser(t *testing.T) {
	ta := setupTestApp(t)

	post(t, ta.app, "/resource", "shared", "alice")
	post(t, ta.app, "/resource", "shared", "bob")
	if ta.calls.Load() != 2 {
		t.Fatalf("expected both users to reach the handler, got %d calls", ta.calls.Load())
	}
}

func TestIdempotencyRejectsKeyReuseOnOtherRoute(t *testing.T) {
	ta := setupTestApp(t)

	post(t, ta.app, "/resource", "k1", "")
	status, _ := post(t, ta.app, "/other", "k1", "")
	if status != fiber.StatusUnprocessableEntity {
		t.Fatalf("expected %d got %d", fiber.StatusUnprocessableEntity, status)
	}
}

func TestIdempotencyDoesNotRecordServerErrors(t *testing.T) {
	ta := setupTestApp(t)

	post(t, ta.app, "/broken", "retry-me", "")
	post(t, ta.app, "/broken", "retry-me", "")
	if ta.calls.Load() != 2 {
		t.Fatalf("expected retry after server error to reach handler, got %d calls", ta.calls.Load())
	}
}

func TestIdempotencyInProgressConflict(t *testing.T) {
	ta := setupTestApp(t)
	if err := ta.mr.Set(idempotencyPrefix+"user-1:busy", inProgressMarker); err != nil {
		t.Fatalf("seed marker: %v", err)
	}

	status, _ := post(t, ta.app, "/resource", "busy", "")
	if status != fiber.StatusConflict {
		t.Fatalf("expected %d got %d", fiber.StatusConflict, status)
	}
}
