package identity

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/congo-pay/fxwallet/internal/infra"
)

// Repository persists users.
type Repository interface {
	Create(ctx context.Context, user User) error
	FindByPhone(ctx context.Context, phone string) (User, error)
	FindByID(ctx context.Context, id string) (User, error)
	UpdateDevice(ctx context.Context, id, deviceID string) error
	SetVerificationCode(ctx context.Context, id string, hash []byte, expiresAt time.Time) error
	MarkVerified(ctx context.Context, id string, at time.Time) error
	UpdateTokenVersion(ctx context.Context, id string, version int) error
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db infra.DBTX
}

// NewPostgresRepository builds a Postgres-backed identity repository.
func NewPostgresRepository(db infra.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const userColumns = `id, phone, pin_hash, device_id, verified, token_version, code_hash, code_expires_at, created_at, verified_at`

// Create inserts a new user.
func (r *PostgresRepository) Create(ctx context.Context, user User) error {
	userID, err := uuid.Parse(user.ID)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO users (`+userColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		userID, user.Phone, user.PINHash, user.DeviceID, user.Verified, user.TokenVersion,
		user.CodeHash, nullTime(user.CodeExpiresAt), user.CreatedAt.UTC(), nullTime(user.VerifiedAt))
	if infra.IsUniqueViolation(err) {
		return ErrUserExists
	}
	return err
}

// FindByPhone fetches a user by phone number.
func (r *PostgresRepository) FindByPhone(ctx context.Context, phone string) (User, error) {
	return scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE phone = $1`, phone))
}

// FindByID fetches a user by identifier.
func (r *PostgresRepository) FindByID(ctx context.Context, id string) (User, error) {
	userID, err := uuid.Parse(id)
	if err != nil {
		return User{}, ErrUserNotFound
	}
	return scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID))
}

// UpdateDevice stores the users bound device identifier.
func (r *PostgresRepository) UpdateDevice(ctx context.Context, id, deviceID string) error {
	return r.update(ctx, `UPDATE users SET device_id = $2 WHERE id = $1`, id, deviceID)
}

// SetVerificationCode replaces any pending code.
func (r *PostgresRepository) SetVerificationCode(ctx context.Context, id string, hash []byte, expiresAt time.Time) error {
	return r.update(ctx, `UPDATE users SET code_hash = $2, code_expires_at = $3 WHERE id = $1`, id, hash, expiresAt.UTC())
}

// MarkVerified flags the user verified and burns the pending code.
func (r *PostgresRepository) MarkVerified(ctx context.Context, id string, at time.Time) error {
	return r.update(ctx, `UPDATE users SET verified = TRUE, verified_at = $2, code_hash = NULL, code_expires_at = NULL
        WHERE id = $1`, id, at.UTC())
}

// UpdateTokenVersion invalidates tokens issued under older versions.
func (r *PostgresRepository) UpdateTokenVersion(ctx context.Context, id string, version int) error {
	return r.update(ctx, `UPDATE users SET token_version = $2 WHERE id = $1`, id, version)
}

func (r *PostgresRepository) update(ctx context.Context, sql, id string, args ...any) error {
	userID, err := uuid.Parse(id)
	if err != nil {
		return ErrUserNotFound
	}
	cmd, err := r.db.Exec(ctx, sql, append([]any{userID}, args...)...)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (User, error) {
	var (
		id            uuid.UUID
		user          User
		codeExpiresAt *time.Time
		verifiedAt    *time.Time
	)
	err := row.Scan(&id, &user.Phone, &user.PINHash, &user.DeviceID, &user.Verified, &user.TokenVersion,
		&user.CodeHash, &codeExpiresAt, &user.CreatedAt, &verifiedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, err
	}
	user.ID = id.String()
	user.CreatedAt = user.CreatedAt.UTC()
	if codeExpiresAt != nil {
		user.CodeExpiresAt = codeExpiresAt.UTC()
	}
	if verifiedAt != nil {
		user.VerifiedAt = verifiedAt.UTC()
	}
	return user, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	t = t.UTC()
	return &t
}
