package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/congo-pay/fxwallet/internal/ledger"
	"github.com/congo-pay/fxwallet/internal/wallet"
)

// PostgresStore runs scopes as READ COMMITTED transactions with SELECT ... FOR UPDATE
// row locks.
type PostgresStore struct {
	pool    *pgxpool.Pool
	wallets *wallet.PostgresRepository
	records *ledger.PostgresRepository
}

// NewPostgresStore builds a store over pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{
		pool:    pool,
		wallets: wallet.NewPostgresRepository(pool),
		records: ledger.NewPostgresRepository(pool),
	}
}

// ListByUser implements wallet.Reader.
func (s *PostgresStore) ListByUser(ctx context.Context, userID string) ([]wallet.Wallet, error) {
	return s.wallets.ListByUser(ctx, userID)
}

// List implements ledger.Reader.
func (s *PostgresStore) List(ctx context.Context, userID string, filter ledger.Filter) (ledger.Page, error) {
	return s.records.List(ctx, userID, filter)
}

// Get implements ledger.Reader.
func (s *PostgresStore) Get(ctx context.Context, id string) (ledger.Record, error) {
	return s.records.Get(ctx, id)
}

type pgTx struct {
	tx      pgx.Tx
	wallets *wallet.PostgresRepository
	ledger  *ledger.PostgresRepository
}

// LockUser takes a transaction-scoped advisory lock keyed by the user id.
func (t pgTx) LockUser(ctx context.Context, userID string) error {
	if _, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, userID); err != nil {
		return fmt.Errorf("lock user: %w", err)
	}
	return nil
}

func (t pgTx) Wallets() wallet.Repository { return t.wallets }
func (t pgTx) Ledger() ledger.Appender    { return t.ledger }

// WithinTx implements Transactor.
func (s *PostgresStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if err := fn(ctx, pgTx{
		tx:      tx,
		wallets: wallet.NewPostgresRepository(tx),
		ledger:  ledger.NewPostgresRepository(tx),
	}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
