package fx

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFXApp() *fiber.App {
	r := newTestResolver(NewMemoryCache(), &stubProvider{err: errors.New("offline")})
	h := NewHandler(r)
	app := fiber.New()
	app.Get("/fx/rates", h.Rates)
	app.Get("/fx/rates/:currency", h.Rate)
	app.Get("/fx/supported", h.Supported)
	return app
}

func TestHandlerRate(t *testing.T) {
	app := newFXApp()

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/fx/rates/usd", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "NGN", body["baseCurrency"])
	assert.Equal(t, "USD", body["targetCurrency"])
	assert.Equal(t, "0.00065", body["rate"])
}

func TestHandlerRateRejectsUnknownCurrency(t *testing.T) {
	app := newFXApp()

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/fx/rates/XAF", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestHandlerSupported(t *testing.T) {
	app := newFXApp()

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/fx/supported", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	var body struct {
		Currencies []string `json:"currencies"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.ElementsMatch(t, Currencies(), body.Currencies)
}
