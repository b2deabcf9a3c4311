package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/fxwallet/internal/infra"
)

// Repository reads and writes wallet rows inside one atomic scope. Rows returned by the
// ForUpdate methods stay locked until the scope ends.
type Repository interface {
	GetForUpdate(ctx context.Context, userID, currency string) (Wallet, error)
	GetOrCreateForUpdate(ctx context.Context, userID, currency string) (Wallet, error)
	Create(ctx context.Context, wallet Wallet) error
	UpdateBalance(ctx context.Context, id string, balance decimal.Decimal) error
}

// Reader serves unlocked wallet reads.
type Reader interface {
	ListByUser(ctx context.Context, userID string) ([]Wallet, error)
}

// PostgresRepository stores wallets in PostgreSQL.
type PostgresRepository struct {
	db infra.DBTX
}

// NewPostgresRepository builds a repository bound to a pool or to a pgx.Tx.
func NewPostgresRepository(db infra.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const walletColumns = `id, user_id, currency, balance, created_at, updated_at`

// GetForUpdate locks the wallet row for (userID, currency).
func (r *PostgresRepository) GetForUpdate(ctx context.Context, userID, currency string) (Wallet, error) {
	owner, err := uuid.Parse(userID)
	if err != nil {
		return Wallet{}, fmt.Errorf("parse user id: %w", err)
	}
	row := r.db.QueryRow(ctx, `SELECT `+walletColumns+`
        FROM wallets WHERE user_id = $1 AND currency = $2 FOR UPDATE`, owner, currency)
	w, err := scanWallet(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Wallet{}, ErrNotFound
	}
	return w, err
}

// GetOrCreateForUpdate inserts a zero-balance row unless one exists, then locks it.
// Concurrent first uses converge on the same row.
func (r *PostgresRepository) GetOrCreateForUpdate(ctx context.Context, userID, currency string) (Wallet, error) {
	owner, err := uuid.Parse(userID)
	if err != nil {
		return Wallet{}, fmt.Errorf("parse user id: %w", err)
	}
	now := time.Now().UTC()
	if _, err := r.db.Exec(ctx, `INSERT INTO wallets (id, user_id, currency, balance, created_at, updated_at)
        VALUES ($1, $2, $3, 0, $4, $4)
        ON CONFLICT (user_id, currency) DO NOTHING`, uuid.New(), owner, currency, now); err != nil {
		return Wallet{}, fmt.Errorf("ensure wallet: %w", err)
	}
	return r.GetForUpdate(ctx, userID, currency)
}

// Create inserts a wallet with its opening balance.
func (r *PostgresRepository) Create(ctx context.Context, wallet Wallet) error {
	walletID, err := uuid.Parse(wallet.ID)
	if err != nil {
		return err
	}
	owner, err := uuid.Parse(wallet.UserID)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO wallets (id, user_id, currency, balance, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6)`, walletID, owner, wallet.Currency, wallet.Balance,
		wallet.CreatedAt.UTC(), wallet.UpdatedAt.UTC())
	switch {
	case infra.IsUniqueViolation(err):
		return ErrExists
	case infra.IsCheckViolation(err):
		return ErrNegativeBalance
	}
	return err
}

// UpdateBalance persists a new balance for a locked row.
func (r *PostgresRepository) UpdateBalance(ctx context.Context, id string, balance decimal.Decimal) error {
	walletID, err := uuid.Parse(id)
	if err != nil {
		return err
	}
	if balance.IsNegative() {
		return ErrNegativeBalance
	}
	cmd, err := r.db.Exec(ctx, `UPDATE wallets SET balance = $1, updated_at = $2 WHERE id = $3`,
		balance.Round(BalancePlaces), time.Now().UTC(), walletID)
	if infra.IsCheckViolation(err) {
		return ErrNegativeBalance
	}
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByUser returns every wallet owned by userID ordered by currency.
func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]Wallet, error) {
	owner, err := uuid.Parse(userID)
	if err != nil {
		return nil, fmt.Errorf("parse user id: %w", err)
	}
	rows, err := r.db.Query(ctx, `SELECT `+walletColumns+`
        FROM wallets WHERE user_id = $1 ORDER BY currency`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var wallets []Wallet
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, err
		}
		wallets = append(wallets, w)
	}
	return wallets, rows.Err()
}

func scanWallet(row pgx.Row) (Wallet, error) {
	var (
		w       Wallet
		id      uuid.UUID
		ownerID uuid.UUID
	)
	if err := row.Scan(&id, &ownerID, &w.Currency, &w.Balance, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return Wallet{}, err
	}
	w.ID = id.String()
	w.UserID = ownerID.String()
	w.CreatedAt = w.CreatedAt.UTC()
	w.UpdatedAt = w.UpdatedAt.UTC()
	return w, nil
}
