package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/fxwallet/internal/ledger"
	"github.com/congo-pay/fxwallet/internal/wallet"
)

func credit(t *testing.T, s *MemoryStore, userID, currency string, amount decimal.Decimal) {
	t.Helper()
	err := s.WithinTx(context.Background(), func(ctx context.Context, tx Tx) error {
		w, err := tx.Wallets().GetOrCreateForUpdate(ctx, userID, currency)
		if err != nil {
			return err
		}
		return tx.Wallets().UpdateBalance(ctx, w.ID, w.Balance.Add(amount))
	})
	require.NoError(t, err)
}

func balance(t *testing.T, s *MemoryStore, userID, currency string) decimal.Decimal {
	t.Helper()
	wallets, err := s.ListByUser(context.Background(), userID)
	require.NoError(t, err)
	for _, w := range wallets {
		if w.Currency == currency {
			return w.Balance
		}
	}
	t.Fatalf("no %s wallet for %s", currency, userID)
	return decimal.Zero
}

func TestMemoryStoreCommitsStagedWrites(t *testing.T) {
	s := NewMemoryStore()
	credit(t, s, "u1", "NGN", decimal.NewFromInt(100))
	credit(t, s, "u1", "USD", decimal.RequireFromString("2.5"))

	wallets, err := s.ListByUser(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, wallets, 2)
	require.Equal(t, "NGN", wallets[0].Currency)
	require.Equal(t, "USD", wallets[1].Currency)
	require.True(t, balance(t, s, "u1", "USD").Equal(decimal.RequireFromString("2.50")))
}

func TestMemoryStoreRollsBackOnError(t *testing.T) {
	s := NewMemoryStore()
	boom := errors.New("boom")

	err := s.WithinTx(context.Background(), func(ctx context.Context, tx Tx) error {
		w, err := tx.Wallets().GetOrCreateForUpdate(ctx, "u1", "NGN")
		if err != nil {
			return err
		}
		if err := tx.Wallets().UpdateBalance(ctx, w.ID, decimal.NewFromInt(50)); err != nil {
			return err
		}
		if err := tx.Ledger().Append(ctx, ledger.Record{ID: uuid.NewString(), UserID: "u1", IdempotencyKey: "k"}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	wallets, err := s.ListByUser(context.Background(), "u1")
	require.NoError(t, err)
	require.Empty(t, wallets)
	page, err := s.List(context.Background(), "u1", ledger.Filter{})
	require.NoError(t, err)
	require.Zero(t, page.Total)

	// the key was never committed, so it is free again
	err = s.WithinTx(context.Background(), func(ctx context.Context, tx Tx) error {
		return tx.Ledger().Append(ctx, ledger.Record{ID: uuid.NewString(), UserID: "u1", IdempotencyKey: "k"})
	})
	require.NoError(t, err)
}

func TestMemoryStoreDoesNotCommitAfterCancel(t *testing.T) {
	s := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())

	err := s.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		w, err := tx.Wallets().GetOrCreateForUpdate(ctx, "u1", "NGN")
		if err != nil {
			return err
		}
		cancel()
		return tx.Wallets().UpdateBalance(ctx, w.ID, decimal.NewFromInt(10))
	})
	require.ErrorIs(t, err, context.Canceled)

	wallets, err := s.ListByUser(context.Background(), "u1")
	require.NoError(t, err)
	require.Empty(t, wallets)
}

func TestMemoryStoreRejectsNegativeBalance(t *testing.T) {
	s := NewMemoryStore()
	err := s.WithinTx(context.Background(), func(ctx context.Context, tx Tx) error {
		w, err := tx.Wallets().GetOrCreateForUpdate(ctx, "u1", "NGN")
		if err != nil {
			return err
		}
		return tx.Wallets().UpdateBalance(ctx, w.ID, decimal.NewFromInt(-1))
	})
	require.ErrorIs(t, err, wallet.ErrNegativeBalance)
}

func TestMemoryStoreCreateExisting(t *testing.T) {
	s := NewMemoryStore()
	credit(t, s, "u1", "NGN", decimal.NewFromInt(1))

	err := s.WithinTx(context.Background(), func(ctx context.Context, tx Tx) error {
		now := time.Now().UTC()
		return tx.Wallets().Create(ctx, wallet.Wallet{
			ID: uuid.NewString(), UserID: "u1", Currency: "NGN", Balance: decimal.NewFromInt(100),
			CreatedAt: now, UpdatedAt: now,
		})
	})
	require.ErrorIs(t, err, wallet.ErrExists)
}

func TestMemoryStoreGetForUpdateMissing(t *testing.T) {
	s := NewMemoryStore()
	err := s.WithinTx(context.Background(), func(ctx context.Context, tx Tx) error {
		_, err := tx.Wallets().GetForUpdate(ctx, "u1", "EUR")
		return err
	})
	require.ErrorIs(t, err, wallet.ErrNotFound)
}

func TestMemoryStoreDuplicateKey(t *testing.T) {
	s := NewMemoryStore()
	appendKey := func(key string) error {
		return s.WithinTx(context.Background(), func(ctx context.Context, tx Tx) error {
			return tx.Ledger().Append(ctx, ledger.Record{ID: uuid.NewString(), UserID: "u1", IdempotencyKey: key})
		})
	}
	require.NoError(t, appendKey("same"))
	require.ErrorIs(t, appendKey("same"), ledger.ErrDuplicateKey)

	err := s.WithinTx(context.Background(), func(ctx context.Context, tx Tx) error {
		if err := tx.Ledger().Append(ctx, ledger.Record{ID: uuid.NewString(), IdempotencyKey: "twice"}); err != nil {
			return err
		}
		return tx.Ledger().Append(ctx, ledger.Record{ID: uuid.NewString(), IdempotencyKey: "twice"})
	})
	require.ErrorIs(t, err, ledger.ErrDuplicateKey)
}

func TestMemoryStoreSerialisesConcurrentWriters(t *testing.T) {
	s := NewMemoryStore()
	const workers = 50

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			credit(t, s, "u1", "NGN", decimal.NewFromInt(1))
		}()
	}
	wg.Wait()

	wallets, err := s.ListByUser(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, wallets, 1)
	require.True(t, wallets[0].Balance.Equal(decimal.NewFromInt(workers)))
}

func TestMemoryStoreLockWaitHonoursContext(t *testing.T) {
	s := NewMemoryStore()
	credit(t, s, "u1", "NGN", decimal.NewFromInt(1))

	locked := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = s.WithinTx(context.Background(), func(ctx context.Context, tx Tx) error {
			if _, err := tx.Wallets().GetForUpdate(ctx, "u1", "NGN"); err != nil {
				return err
			}
			close(locked)
			<-done
			return nil
		})
	}()
	<-locked

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := s.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		_, err := tx.Wallets().GetForUpdate(ctx, "u1", "NGN")
		return err
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	close(done)
}

func TestMemoryStoreUserLockSerialisesScopes(t *testing.T) {
	s := NewMemoryStore()

	locked := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = s.WithinTx(context.Background(), func(ctx context.Context, tx Tx) error {
			if err := tx.LockUser(ctx, "u1"); err != nil {
				return err
			}
			close(locked)
			<-done
			return nil
		})
	}()
	<-locked

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := s.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.LockUser(ctx, "u1")
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)

	err = s.WithinTx(context.Background(), func(ctx context.Context, tx Tx) error {
		return tx.LockUser(ctx, "u2")
	})
	require.NoError(t, err)
	close(done)
}

func TestMemoryStoreListPaging(t *testing.T) {
	s := NewMemoryStore()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range 5 {
		typ := ledger.TypeFunding
		if i%2 == 1 {
			typ = ledger.TypeConversion
		}
		rec := ledger.Record{ID: uuid.NewString(), UserID: "u1", Type: typ, CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		require.NoError(t, s.WithinTx(context.Background(), func(ctx context.Context, tx Tx) error {
			return tx.Ledger().Append(ctx, rec)
		}))
	}

	page, err := s.List(context.Background(), "u1", ledger.Filter{Page: 1, Limit: 2})
	require.NoError(t, err)
	require.Equal(t, 5, page.Total)
	require.Len(t, page.Data, 2)
	require.True(t, page.Data[0].CreatedAt.After(page.Data[1].CreatedAt))

	page, err = s.List(context.Background(), "u1", ledger.Filter{Page: 3, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Data, 1)

	page, err = s.List(context.Background(), "u1", ledger.Filter{Type: ledger.TypeConversion})
	require.NoError(t, err)
	require.Equal(t, 2, page.Total)

	got, err := s.Get(context.Background(), page.Data[0].ID)
	require.NoError(t, err)
	require.Equal(t, ledger.TypeConversion, got.Type)

	_, err = s.Get(context.Background(), "missing")
	require.ErrorIs(t, err, ledger.ErrNotFound)
}
