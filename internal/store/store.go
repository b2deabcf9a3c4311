// Package store provides the atomic scope wallet operations run in, over PostgreSQL or
// an in-process memory backend with the same locking behaviour.
package store

import (
	"context"

	"github.com/congo-pay/fxwallet/internal/ledger"
	"github.com/congo-pay/fxwallet/internal/wallet"
)

// Tx is the view of one open scope. Everything written through it commits or rolls back
// together, and row locks are held until then.
type Tx interface {
	// LockUser serialises scopes of one user. It must be the first lock a scope takes.
	LockUser(ctx context.Context, userID string) error
	Wallets() wallet.Repository
	Ledger() ledger.Appender
}

// Transactor runs fn inside one scope. The scope commits only when fn returns nil and
// ctx is still live; otherwise every write is discarded and the locks are released.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Store is the full persistence surface used by the wallet engine and history endpoints.
type Store interface {
	Transactor
	wallet.Reader
	ledger.Reader
}
