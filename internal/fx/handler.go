package fx

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes the rate endpoints.
type Handler struct {
	resolver *Resolver
}

// NewHandler builds an fx HTTP handler.
func NewHandler(resolver *Resolver) *Handler {
	return &Handler{resolver: resolver}
}

// Rates returns the whole rate table keyed to the base currency.
func (h *Handler) Rates(c *fiber.Ctx) error {
	table := h.resolver.GetRates(c.UserContext())
	rates := make(map[string]string, len(table))
	for code, rate := range table {
		rates[code] = rate.String()
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"baseCurrency": h.resolver.BaseCurrency(),
		"rates":        rates,
		"timestamp":    time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// Rate returns the rate of a single currency against the base currency.
func (h *Handler) Rate(c *fiber.Ctx) error {
	code := Normalize(c.Params("currency"))
	if !IsSupported(code) {
		return fiber.NewError(http.StatusBadRequest, "unsupported currency: "+code)
	}
	rate, err := h.resolver.GetRate(c.UserContext(), code)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"baseCurrency":   h.resolver.BaseCurrency(),
		"targetCurrency": code,
		"rate":           rate.String(),
		"timestamp":      time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// Supported lists the currencies present in the current rate table.
func (h *Handler) Supported(c *fiber.Ctx) error {
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"currencies": h.resolver.SupportedCurrencies(c.UserContext()),
	})
}
