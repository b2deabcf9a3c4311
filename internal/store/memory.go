package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/fxwallet/internal/ledger"
	"github.com/congo-pay/fxwallet/internal/wallet"
)

// MemoryStore keeps wallets and records in process. Each wallet row and each idempotency
// key has its own lock, held from first touch until the scope commits or rolls back, so
// concurrent scopes serialise exactly as they would on PostgreSQL row locks.
type MemoryStore struct {
	mu      sync.Mutex
	locks   map[string]chan struct{}
	wallets map[string]wallet.Wallet
	records []ledger.Record
	keys    map[string]struct{}
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		locks:   make(map[string]chan struct{}),
		wallets: make(map[string]wallet.Wallet),
		keys:    make(map[string]struct{}),
	}
}

func (s *MemoryStore) lockFor(name string) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.locks[name]
	if !ok {
		ch = make(chan struct{}, 1)
		s.locks[name] = ch
	}
	return ch
}

// WithinTx implements Transactor.
func (s *MemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &memTx{
		store:  s,
		held:   make(map[string]chan struct{}),
		staged: make(map[string]wallet.Wallet),
		keys:   make(map[string]struct{}),
	}
	defer tx.release()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	tx.commit()
	return nil
}

// ListByUser implements wallet.Reader.
func (s *MemoryStore) ListByUser(_ context.Context, userID string) ([]wallet.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []wallet.Wallet
	for _, w := range s.wallets {
		if w.UserID == userID {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Currency < out[j].Currency })
	return out, nil
}

// List implements ledger.Reader.
func (s *MemoryStore) List(_ context.Context, userID string, filter ledger.Filter) (ledger.Page, error) {
	filter = filter.Normalize()
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := make([]ledger.Record, 0)
	for i := len(s.records) - 1; i >= 0; i-- {
		rec := s.records[i]
		if rec.UserID != userID {
			continue
		}
		if filter.Type != "" && rec.Type != filter.Type {
			continue
		}
		matched = append(matched, rec)
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	page := ledger.Page{Data: []ledger.Record{}, Total: len(matched), Page: filter.Page, Limit: filter.Limit}
	start := filter.Offset()
	if start >= len(matched) {
		return page, nil
	}
	end := min(start+filter.Limit, len(matched))
	page.Data = append(page.Data, matched[start:end]...)
	return page, nil
}

// Get implements ledger.Reader.
func (s *MemoryStore) Get(_ context.Context, id string) (ledger.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.records {
		if rec.ID == id {
			return rec, nil
		}
	}
	return ledger.Record{}, ledger.ErrNotFound
}

type memTx struct {
	store   *MemoryStore
	held    map[string]chan struct{}
	staged  map[string]wallet.Wallet
	records []ledger.Record
	keys    map[string]struct{}
}

func (t *memTx) LockUser(ctx context.Context, userID string) error {
	return t.acquire(ctx, "user:"+userID)
}

func (t *memTx) Wallets() wallet.Repository { return memWallets{t} }
func (t *memTx) Ledger() ledger.Appender    { return memLedger{t} }

func (t *memTx) acquire(ctx context.Context, name string) error {
	if _, ok := t.held[name]; ok {
		return nil
	}
	ch := t.store.lockFor(name)
	select {
	case ch <- struct{}{}:
		t.held[name] = ch
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *memTx) release() {
	for name, ch := range t.held {
		<-ch
		delete(t.held, name)
	}
}

func (t *memTx) commit() {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, w := range t.staged {
		s.wallets[key] = w
	}
	for _, rec := range t.records {
		if rec.IdempotencyKey != "" {
			s.keys[rec.IdempotencyKey] = struct{}{}
		}
		s.records = append(s.records, rec)
	}
}

// load returns the scope's view of a locked row.
func (t *memTx) load(key string) (wallet.Wallet, bool) {
	if w, ok := t.staged[key]; ok {
		return w, true
	}
	t.store.mu.Lock()
	w, ok := t.store.wallets[key]
	t.store.mu.Unlock()
	if ok {
		t.staged[key] = w
	}
	return w, ok
}

type memWallets struct{ tx *memTx }

func (r memWallets) GetForUpdate(ctx context.Context, userID, currency string) (wallet.Wallet, error) {
	key := wallet.Key(userID, currency)
	if err := r.tx.acquire(ctx, key); err != nil {
		return wallet.Wallet{}, err
	}
	w, ok := r.tx.load(key)
	if !ok {
		return wallet.Wallet{}, wallet.ErrNotFound
	}
	return w, nil
}

func (r memWallets) GetOrCreateForUpdate(ctx context.Context, userID, currency string) (wallet.Wallet, error) {
	key := wallet.Key(userID, currency)
	if err := r.tx.acquire(ctx, key); err != nil {
		return wallet.Wallet{}, err
	}
	if w, ok := r.tx.load(key); ok {
		return w, nil
	}
	now := time.Now().UTC()
	w := wallet.Wallet{
		ID:        uuid.NewString(),
		UserID:    userID,
		Currency:  currency,
		Balance:   decimal.Zero,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.tx.staged[key] = w
	return w, nil
}

func (r memWallets) Create(ctx context.Context, w wallet.Wallet) error {
	key := wallet.Key(w.UserID, w.Currency)
	if err := r.tx.acquire(ctx, key); err != nil {
		return err
	}
	if _, ok := r.tx.load(key); ok {
		return wallet.ErrExists
	}
	if w.Balance.IsNegative() {
		return wallet.ErrNegativeBalance
	}
	w.Balance = w.Balance.Round(wallet.BalancePlaces)
	r.tx.staged[key] = w
	return nil
}

// UpdateBalance only reaches rows this scope has locked.
func (r memWallets) UpdateBalance(_ context.Context, id string, balance decimal.Decimal) error {
	if balance.IsNegative() {
		return wallet.ErrNegativeBalance
	}
	for key, w := range r.tx.staged {
		if w.ID != id {
			continue
		}
		w.Balance = balance.Round(wallet.BalancePlaces)
		w.UpdatedAt = time.Now().UTC()
		r.tx.staged[key] = w
		return nil
	}
	return wallet.ErrNotFound
}

type memLedger struct{ tx *memTx }

func (l memLedger) Append(ctx context.Context, rec ledger.Record) error {
	if key := rec.IdempotencyKey; key != "" {
		if err := l.tx.acquire(ctx, "idem:"+key); err != nil {
			return err
		}
		if _, ok := l.tx.keys[key]; ok {
			return ledger.ErrDuplicateKey
		}
		l.tx.store.mu.Lock()
		_, taken := l.tx.store.keys[key]
		l.tx.store.mu.Unlock()
		if taken {
			return ledger.ErrDuplicateKey
		}
		l.tx.keys[key] = struct{}{}
	}
	if rec.Metadata != nil {
		meta := make(map[string]any, len(rec.Metadata))
		for k, v := range rec.Metadata {
			meta[k] = v
		}
		rec.Metadata = meta
	}
	l.tx.records = append(l.tx.records, rec)
	return nil
}
