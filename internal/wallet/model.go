package wallet

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when no wallet exists for a (user, currency) pair.
	ErrNotFound = errors.New("wallet not found")
	// ErrExists is returned when creating a wallet whose (user, currency) pair is taken.
	ErrExists = errors.New("wallet already exists")
	// ErrNegativeBalance is returned when a write would take a balance below zero.
	ErrNegativeBalance = errors.New("wallet balance cannot be negative")
)

// BalancePlaces is the number of fractional digits stored for balances.
const BalancePlaces = 2

// Wallet is a per-user, per-currency balance.
type Wallet struct {
	ID        string
	UserID    string
	Currency  string
	Balance   decimal.Decimal
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Covers reports whether the balance can fund a debit of amount.
func (w Wallet) Covers(amount decimal.Decimal) bool {
	return w.Balance.GreaterThanOrEqual(amount)
}

// Key identifies the row a wallet lives in.
func Key(userID, currency string) string {
	return userID + ":" + currency
}
