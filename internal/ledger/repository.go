package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/congo-pay/fxwallet/internal/infra"
)

// Appender writes records inside an atomic scope.
type Appender interface {
	Append(ctx context.Context, rec Record) error
}

// Reader serves history queries.
type Reader interface {
	List(ctx context.Context, userID string, filter Filter) (Page, error)
	Get(ctx context.Context, id string) (Record, error)
}

// PostgresRepository stores records in the transactions table.
type PostgresRepository struct {
	db infra.DBTX
}

// NewPostgresRepository builds a repository bound to a pool or to a pgx.Tx.
func NewPostgresRepository(db infra.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const recordColumns = `id, user_id, type, status, source_currency, target_currency, amount,
        converted_amount, exchange_rate, description, metadata, idempotency_key, created_at`

// Append inserts rec. A reused idempotency key yields ErrDuplicateKey.
func (r *PostgresRepository) Append(ctx context.Context, rec Record) error {
	id, err := uuid.Parse(rec.ID)
	if err != nil {
		return err
	}
	owner, err := uuid.Parse(rec.UserID)
	if err != nil {
		return err
	}
	metadata, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	_, err = r.db.Exec(ctx, `INSERT INTO transactions (`+recordColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		id, owner, string(rec.Type), string(rec.Status), rec.SourceCurrency, nullString(rec.TargetCurrency),
		rec.Amount, rec.ConvertedAmount, rec.ExchangeRate, rec.Description, metadata,
		nullString(rec.IdempotencyKey), rec.CreatedAt.UTC())
	if infra.IsUniqueViolation(err) {
		return ErrDuplicateKey
	}
	return err
}

// List returns a page of userID's records, newest first.
func (r *PostgresRepository) List(ctx context.Context, userID string, filter Filter) (Page, error) {
	filter = filter.Normalize()
	owner, err := uuid.Parse(userID)
	if err != nil {
		return Page{}, fmt.Errorf("parse user id: %w", err)
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM transactions
        WHERE user_id = $1 AND ($2 = '' OR type = $2)`, owner, string(filter.Type)).Scan(&total); err != nil {
		return Page{}, err
	}

	rows, err := r.db.Query(ctx, `SELECT `+recordColumns+` FROM transactions
        WHERE user_id = $1 AND ($2 = '' OR type = $2)
        ORDER BY created_at DESC, id DESC
        LIMIT $3 OFFSET $4`, owner, string(filter.Type), filter.Limit, filter.Offset())
	if err != nil {
		return Page{}, err
	}
	defer rows.Close()

	records := make([]Record, 0, filter.Limit)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return Page{}, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return Page{}, err
	}
	return Page{Data: records, Total: total, Page: filter.Page, Limit: filter.Limit}, nil
}

// Get fetches one record by id.
func (r *PostgresRepository) Get(ctx context.Context, id string) (Record, error) {
	recordID, err := uuid.Parse(id)
	if err != nil {
		return Record{}, ErrNotFound
	}
	rec, err := scanRecord(r.db.QueryRow(ctx, `SELECT `+recordColumns+` FROM transactions WHERE id = $1`, recordID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	return rec, err
}

func scanRecord(row pgx.Row) (Record, error) {
	var (
		rec      Record
		id       uuid.UUID
		owner    uuid.UUID
		recType  string
		status   string
		target   *string
		key      *string
		metadata []byte
	)
	if err := row.Scan(&id, &owner, &recType, &status, &rec.SourceCurrency, &target, &rec.Amount,
		&rec.ConvertedAmount, &rec.ExchangeRate, &rec.Description, &metadata, &key, &rec.CreatedAt); err != nil {
		return Record{}, err
	}
	rec.ID = id.String()
	rec.UserID = owner.String()
	rec.Type = Type(recType)
	rec.Status = Status(status)
	if target != nil {
		rec.TargetCurrency = *target
	}
	if key != nil {
		rec.IdempotencyKey = *key
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &rec.Metadata); err != nil {
			return Record{}, fmt.Errorf("decode metadata: %w", err)
		}
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	return rec, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
