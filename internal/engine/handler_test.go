package engine

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/fxwallet/internal/auth"
	"github.com/congo-pay/fxwallet/internal/middleware"
)

func newHandlerApp(f fixture) *fiber.App {
	h := NewHandler(f.engine)
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals(auth.LocalUserID, user)
		return c.Next()
	})
	app.Post("/wallet/fund", h.Fund)
	app.Post("/wallet/withdraw", h.Withdraw)
	app.Post("/wallet/convert", h.Convert)
	app.Post("/wallet/trade", h.Trade)
	return app
}

func call(t *testing.T, app *fiber.App, path, body, key string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, path, strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if key != "" {
		req.Header.Set(middleware.IdempotencyKeyHeader, key)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func errorKind(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	kind, _ := e["kind"].(string)
	return kind
}

func TestHandlerFundAndConvert(t *testing.T) {
	f := newFixture(t)
	app := newHandlerApp(f)

	status, body := call(t, app, "/wallet/fund", `{"amount":"1000","currency":"ngn"}`, "")
	require.Equal(t, fiber.StatusCreated, status)
	assert.Equal(t, "NGN", body["currency"])
	assert.Equal(t, "1000.00", body["newBalance"])
	assert.NotEmpty(t, body["transactionId"])

	status, body = call(t, app, "/wallet/convert", `{"amount":1000,"fromCurrency":"NGN","toCurrency":"USD"}`, "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "0.65", body["amountReceived"])
	assert.Equal(t, "0.00065000", body["exchangeRate"])
	assert.Equal(t, "0.00", body["newSourceBalance"])
	assert.Equal(t, "0.65", body["newTargetBalance"])
}

func TestHandlerErrorKinds(t *testing.T) {
	f := newFixture(t)
	app := newHandlerApp(f)

	status, body := call(t, app, "/wallet/trade", `{"amount":"10","fromCurrency":"USD","toCurrency":"EUR"}`, "")
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, KindValidation, errorKind(body))

	status, body = call(t, app, "/wallet/convert", `{"amount":"10","fromCurrency":"USD","toCurrency":"XAF"}`, "")
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, KindValidation, errorKind(body))

	status, body = call(t, app, "/wallet/convert", `{"amount":"10","fromCurrency":"USD"}`, "")
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, KindValidation, errorKind(body))

	status, body = call(t, app, "/wallet/fund", `{"amount":`, "")
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, KindValidation, errorKind(body))

	status, body = call(t, app, "/wallet/withdraw", `{"amount":"5","currency":"USD"}`, "")
	assert.Equal(t, fiber.StatusUnprocessableEntity, status)
	assert.Equal(t, KindInsufficientFunds, errorKind(body))
}

func TestHandlerPassesIdempotencyKey(t *testing.T) {
	f := newFixture(t)
	app := newHandlerApp(f)

	status, _ := call(t, app, "/wallet/fund", `{"amount":"10"}`, "client-key-1")
	require.Equal(t, fiber.StatusCreated, status)
	status, body := call(t, app, "/wallet/fund", `{"amount":"10"}`, "client-key-1")
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, KindConflict, errorKind(body))

	assert.Equal(t, user+":client-key-1", f.history(t).Data[0].IdempotencyKey)
	assert.True(t, f.balance(t, "NGN").Equal(dec("10")))
}

func TestValidatorRegistersCurrencyTag(t *testing.T) {
	var v interface{ Struct(any) error }
	require.NotPanics(t, func() { v = newValidator() })

	assert.NoError(t, v.Struct(fundRequest{Currency: "usd"}))
	assert.Error(t, v.Struct(fundRequest{Currency: "XAF"}))
}
