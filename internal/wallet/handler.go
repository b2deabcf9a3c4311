package wallet

import (
	"context"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/fxwallet/internal/auth"
)

// Lister returns a user's wallets.
type Lister interface {
	Wallets(ctx context.Context, userID string) ([]Wallet, error)
}

// Handler exposes wallet read endpoints.
type Handler struct {
	wallets Lister
}

// NewHandler builds a wallet HTTP handler.
func NewHandler(wallets Lister) *Handler {
	return &Handler{wallets: wallets}
}

type balanceResponse struct {
	Currency string `json:"currency"`
	Balance  string `json:"balance"`
}

// List returns every balance held by the authenticated user.
func (h *Handler) List(c *fiber.Ctx) error {
	userID := auth.UserID(c)
	if userID == "" {
		return fiber.NewError(http.StatusUnauthorized, "missing user")
	}
	wallets, err := h.wallets.Wallets(c.UserContext(), userID)
	if err != nil {
		return err
	}
	out := make([]balanceResponse, 0, len(wallets))
	for _, w := range wallets {
		out = append(out, balanceResponse{Currency: w.Currency, Balance: w.Balance.StringFixed(BalancePlaces)})
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"wallets": out})
}
