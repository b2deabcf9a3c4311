package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/fxwallet/internal/engine"
	"github.com/congo-pay/fxwallet/internal/fx"
	"github.com/congo-pay/fxwallet/internal/ledger"
	"github.com/congo-pay/fxwallet/internal/wallet"
)

// RegisterWalletRoutes wires balance reads and wallet operations.
func RegisterWalletRoutes(r fiber.Router, balances *wallet.Handler, ops *engine.Handler) {
	group := r.Group("/wallet")
	group.Get("", balances.List)
	group.Post("/fund", ops.Fund)
	group.Post("/convert", ops.Convert)
	group.Post("/trade", ops.Trade)
	group.Post("/withdraw", ops.Withdraw)
}

// RegisterTransactionRoutes wires history endpoints.
func RegisterTransactionRoutes(r fiber.Router, h *ledger.Handler) {
	r.Get("/transactions", h.List)
	r.Get("/transactions/:id", h.Get)
}

// RegisterFXRoutes wires rate lookups.
func RegisterFXRoutes(r fiber.Router, h *fx.Handler) {
	group := r.Group("/fx")
	group.Get("/rates", h.Rates)
	group.Get("/rates/:currency", h.Rate)
	group.Get("/supported", h.Supported)
}
