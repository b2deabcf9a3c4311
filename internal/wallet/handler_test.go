package wallet

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/fxwallet/internal/auth"
)

type fixedLister []Wallet

func (l fixedLister) Wallets(_ context.Context, userID string) ([]Wallet, error) {
	var out []Wallet
	for _, w := range l {
		if w.UserID == userID {
			out = append(out, w)
		}
	}
	return out, nil
}

func TestHandlerListScopesToUser(t *testing.T) {
	lister := fixedLister{
		{UserID: "u1", Currency: "NGN", Balance: decimal.NewFromInt(100)},
		{UserID: "u1", Currency: "USD", Balance: decimal.RequireFromString("0.5")},
		{UserID: "u2", Currency: "EUR", Balance: decimal.NewFromInt(7)},
	}
	app := fiber.New()
	app.Get("/wallet", func(c *fiber.Ctx) error {
		c.Locals(auth.LocalUserID, "u1")
		return c.Next()
	}, NewHandler(lister).List)

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/wallet", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200 got %d", resp.StatusCode)
	}

	var body struct {
		Wallets []balanceResponse `json:"wallets"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Wallets) != 2 {
		t.Fatalf("expected 2 wallets, got %d", len(body.Wallets))
	}
	if body.Wallets[1].Currency != "USD" || body.Wallets[1].Balance != "0.50" {
		t.Fatalf("unexpected wallet %+v", body.Wallets[1])
	}
}

func TestCovers(t *testing.T) {
	w := Wallet{Balance: decimal.RequireFromString("10.00")}
	if !w.Covers(decimal.RequireFromString("10")) {
		t.Fatalf("expected exact balance to cover debit")
	}
	if w.Covers(decimal.RequireFromString("10.01")) {
		t.Fatalf("expected 10.01 to exceed balance")
	}
}
