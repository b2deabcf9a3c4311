// Package engine executes wallet operations: funding, conversion, trade, withdrawal and
// wallet initialization. Every operation runs in one store scope that locks the wallet
// rows it touches, writes the new balances and appends a single ledger record.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/fxwallet/internal/fx"
	"github.com/congo-pay/fxwallet/internal/ledger"
	"github.com/congo-pay/fxwallet/internal/metrics"
	"github.com/congo-pay/fxwallet/internal/notification"
	"github.com/congo-pay/fxwallet/internal/store"
	"github.com/congo-pay/fxwallet/internal/wallet"
)

// InitKeyPrefix prefixes the idempotency key of a user's wallet initialization record.
const InitKeyPrefix = "wallet-init:"

// Rates is the part of the FX resolver the engine converts with.
type Rates interface {
	ConvertAmount(ctx context.Context, amount decimal.Decimal, from, to string) (fx.Conversion, error)
}

// Config holds the engine's tunables.
type Config struct {
	BaseCurrency     string
	InitialBalance   decimal.Decimal
	OperationTimeout time.Duration
}

// Engine is the only writer of wallet balances and ledger records.
type Engine struct {
	store    store.Store
	rates    Rates
	notifier notification.Notifier
	metrics  *metrics.Metrics
	logger   *slog.Logger
	cfg      Config
	now      func() time.Time
}

// New wires an engine. notifier and m may be nil.
func New(st store.Store, rates Rates, notifier notification.Notifier, m *metrics.Metrics, logger *slog.Logger, cfg Config) *Engine {
	if cfg.BaseCurrency == "" {
		cfg.BaseCurrency = "NGN"
	}
	cfg.BaseCurrency = fx.Normalize(cfg.BaseCurrency)
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:    st,
		rates:    rates,
		notifier: notifier,
		metrics:  m,
		logger:   logger,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// FundRequest credits Amount of Currency to the user's wallet. An empty Currency means the
// base currency.
type FundRequest struct {
	UserID         string
	Currency       string
	Amount         decimal.Decimal
	IdempotencyKey string
}

// FundResult reports a single-wallet balance change.
type FundResult struct {
	TransactionID string
	Currency      string
	Amount        decimal.Decimal
	NewBalance    decimal.Decimal
}

// WithdrawRequest debits Amount of Currency from the user's wallet.
type WithdrawRequest struct {
	UserID         string
	Currency       string
	Amount         decimal.Decimal
	IdempotencyKey string
}

// ExchangeRequest moves Amount out of the From wallet and credits its converted value to
// the To wallet.
type ExchangeRequest struct {
	UserID         string
	From           string
	To             string
	Amount         decimal.Decimal
	IdempotencyKey string
}

// ExchangeResult reports a conversion or trade.
type ExchangeResult struct {
	TransactionID    string
	FromCurrency     string
	ToCurrency       string
	AmountIn         decimal.Decimal
	AmountReceived   decimal.Decimal
	ExchangeRate     decimal.Decimal
	NewSourceBalance decimal.Decimal
	NewTargetBalance decimal.Decimal
}

// Fund credits a wallet, creating it on first use.
func (e *Engine) Fund(ctx context.Context, req FundRequest) (FundResult, error) {
	const op = "fund"
	started := time.Now()
	if req.Currency == "" {
		req.Currency = e.cfg.BaseCurrency
	}
	currency, err := validateCurrency("currency", req.Currency)
	if err == nil {
		err = validateAmount(req.Amount)
	}
	if err != nil {
		return FundResult{}, e.finish(ctx, op, started, err)
	}

	ctx, cancel := e.scopeContext(ctx)
	defer cancel()

	var result FundResult
	err = e.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.LockUser(ctx, req.UserID); err != nil {
			return err
		}
		w, err := tx.Wallets().GetOrCreateForUpdate(ctx, req.UserID, currency)
		if err != nil {
			return err
		}
		balance := w.Balance.Add(req.Amount)
		if err := tx.Wallets().UpdateBalance(ctx, w.ID, balance); err != nil {
			return err
		}
		rec := e.newRecord(req.UserID, ledger.TypeFunding, currency, "", req.Amount, ownedKey(req.UserID, req.IdempotencyKey))
		rec.Description = fmt.Sprintf("Funded %s wallet", currency)
		if err := appendRecord(ctx, tx, rec); err != nil {
			return err
		}
		result = FundResult{TransactionID: rec.ID, Currency: currency, Amount: req.Amount, NewBalance: balance}
		return nil
	})
	if err = e.finish(ctx, op, started, err); err != nil {
		return FundResult{}, err
	}
	e.notify(ctx, notification.KindWalletFunded, req.UserID,
		fmt.Sprintf("%s %s credited, balance %s", result.Amount.StringFixed(2), currency, result.NewBalance.StringFixed(2)))
	return result, nil
}

// Withdraw debits a wallet. It never takes a balance below zero.
func (e *Engine) Withdraw(ctx context.Context, req WithdrawRequest) (FundResult, error) {
	const op = "withdraw"
	started := time.Now()
	currency, err := validateCurrency("currency", req.Currency)
	if err == nil {
		err = validateAmount(req.Amount)
	}
	if err != nil {
		return FundResult{}, e.finish(ctx, op, started, err)
	}

	ctx, cancel := e.scopeContext(ctx)
	defer cancel()

	var result FundResult
	err = e.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.LockUser(ctx, req.UserID); err != nil {
			return err
		}
		w, err := lockSource(ctx, tx, req.UserID, currency, req.Amount)
		if err != nil {
			return err
		}
		balance := w.Balance.Sub(req.Amount)
		if err := tx.Wallets().UpdateBalance(ctx, w.ID, balance); err != nil {
			return err
		}
		rec := e.newRecord(req.UserID, ledger.TypeWithdrawal, currency, "", req.Amount, ownedKey(req.UserID, req.IdempotencyKey))
		rec.Description = fmt.Sprintf("Withdrew %s %s", req.Amount.StringFixed(2), currency)
		if err := appendRecord(ctx, tx, rec); err != nil {
			return err
		}
		result = FundResult{TransactionID: rec.ID, Currency: currency, Amount: req.Amount, NewBalance: balance}
		return nil
	})
	if err = e.finish(ctx, op, started, err); err != nil {
		return FundResult{}, err
	}
	e.notify(ctx, notification.KindWalletWithdrawn, req.UserID,
		fmt.Sprintf("%s %s withdrawn, balance %s", result.Amount.StringFixed(2), currency, result.NewBalance.StringFixed(2)))
	return result, nil
}

// Convert exchanges between any two supported currencies.
func (e *Engine) Convert(ctx context.Context, req ExchangeRequest) (ExchangeResult, error) {
	return e.exchange(ctx, ledger.TypeConversion, req)
}

// Trade exchanges between the base currency and another supported currency. Pairs that
// do not include the base currency are rejected.
func (e *Engine) Trade(ctx context.Context, req ExchangeRequest) (ExchangeResult, error) {
	return e.exchange(ctx, ledger.TypeTrade, req)
}

func (e *Engine) exchange(ctx context.Context, typ ledger.Type, req ExchangeRequest) (ExchangeResult, error) {
	op := string(typ)
	started := time.Now()
	from, to, err := e.validatePair(typ, req)
	if err != nil {
		return ExchangeResult{}, e.finish(ctx, op, started, err)
	}

	ctx, cancel := e.scopeContext(ctx)
	defer cancel()

	var result ExchangeResult
	err = e.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.LockUser(ctx, req.UserID); err != nil {
			return err
		}
		source, err := lockSource(ctx, tx, req.UserID, from, req.Amount)
		if err != nil {
			return err
		}
		conv, err := e.rates.ConvertAmount(ctx, req.Amount, from, to)
		if err != nil {
			return err
		}

		sourceBalance := source.Balance.Sub(req.Amount)
		if err := tx.Wallets().UpdateBalance(ctx, source.ID, sourceBalance); err != nil {
			return err
		}
		target, err := tx.Wallets().GetOrCreateForUpdate(ctx, req.UserID, to)
		if err != nil {
			return err
		}
		targetBalance := target.Balance.Add(conv.Amount)
		if err := tx.Wallets().UpdateBalance(ctx, target.ID, targetBalance); err != nil {
			return err
		}

		rec := e.newRecord(req.UserID, typ, from, to, req.Amount, ownedKey(req.UserID, req.IdempotencyKey))
		rec.ConvertedAmount = decimal.NewNullDecimal(conv.Amount)
		rec.ExchangeRate = decimal.NewNullDecimal(conv.Rate)
		verb := "Converted"
		if typ == ledger.TypeTrade {
			verb = "Traded"
		}
		rec.Description = fmt.Sprintf("%s %s %s to %s %s", verb,
			req.Amount.StringFixed(2), from, conv.Amount.StringFixed(2), to)
		if err := appendRecord(ctx, tx, rec); err != nil {
			return err
		}

		result = ExchangeResult{
			TransactionID:    rec.ID,
			FromCurrency:     from,
			ToCurrency:       to,
			AmountIn:         req.Amount,
			AmountReceived:   conv.Amount,
			ExchangeRate:     conv.Rate,
			NewSourceBalance: sourceBalance,
			NewTargetBalance: targetBalance,
		}
		return nil
	})
	if err = e.finish(ctx, op, started, err); err != nil {
		return ExchangeResult{}, err
	}
	e.notify(ctx, notification.KindWalletExchanged, req.UserID,
		fmt.Sprintf("%s %s exchanged for %s %s", result.AmountIn.StringFixed(2), from, result.AmountReceived.StringFixed(2), to))
	return result, nil
}

// InitializeWallet credits the configured initial balance to the user's base-currency
// wallet, creating it when needed. It applies at most once per user, keyed by the
// wallet-init record; later calls return ErrConflict and change nothing.
func (e *Engine) InitializeWallet(ctx context.Context, userID string) (FundResult, error) {
	const op = "initialize"
	started := time.Now()
	if userID == "" {
		return FundResult{}, e.finish(ctx, op, started, invalid("userId", "is required"))
	}

	ctx, cancel := e.scopeContext(ctx)
	defer cancel()

	currency := e.cfg.BaseCurrency
	amount := e.cfg.InitialBalance.Round(wallet.BalancePlaces)
	var result FundResult
	err := e.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.LockUser(ctx, userID); err != nil {
			return err
		}
		w, err := tx.Wallets().GetOrCreateForUpdate(ctx, userID, currency)
		if err != nil {
			return err
		}
		balance := w.Balance.Add(amount)
		if err := tx.Wallets().UpdateBalance(ctx, w.ID, balance); err != nil {
			return err
		}
		rec := e.newRecord(userID, ledger.TypeFunding, currency, "", amount, InitKeyPrefix+userID)
		rec.Description = "Initial wallet credit on account verification"
		rec.Metadata = map[string]any{"source": "initialization"}
		if err := appendRecord(ctx, tx, rec); err != nil {
			return err
		}
		result = FundResult{TransactionID: rec.ID, Currency: currency, Amount: amount, NewBalance: balance}
		return nil
	})
	if err = e.finish(ctx, op, started, err); err != nil {
		return FundResult{}, err
	}
	e.notify(ctx, notification.KindWalletFunded, userID,
		fmt.Sprintf("initial credit of %s %s, balance %s", amount.StringFixed(2), currency, result.NewBalance.StringFixed(2)))
	return result, nil
}

// Wallets lists the user's balances ordered by currency.
func (e *Engine) Wallets(ctx context.Context, userID string) ([]wallet.Wallet, error) {
	wallets, err := e.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, failed("list wallets", err)
	}
	return wallets, nil
}

func (e *Engine) validatePair(typ ledger.Type, req ExchangeRequest) (string, string, error) {
	from, err := validateCurrency("fromCurrency", req.From)
	if err != nil {
		return "", "", err
	}
	to, err := validateCurrency("toCurrency", req.To)
	if err != nil {
		return "", "", err
	}
	if from == to {
		return "", "", invalid("toCurrency", "must differ from fromCurrency")
	}
	if typ == ledger.TypeTrade && from != e.cfg.BaseCurrency && to != e.cfg.BaseCurrency {
		return "", "", invalid("", "trades must include %s on one side", e.cfg.BaseCurrency)
	}
	if err := validateAmount(req.Amount); err != nil {
		return "", "", err
	}
	return from, to, nil
}

func validateCurrency(field, code string) (string, error) {
	code = fx.Normalize(code)
	if code == "" {
		return "", invalid(field, "is required")
	}
	if !fx.IsSupported(code) {
		return "", invalid(field, "unsupported currency %s", code)
	}
	return code, nil
}

func validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return invalid("amount", "must be greater than zero")
	}
	if !amount.Equal(amount.Truncate(wallet.BalancePlaces)) {
		return invalid("amount", "must have at most %d decimal places", wallet.BalancePlaces)
	}
	return nil
}

// lockSource locks the wallet being debited and checks it covers amount.
func lockSource(ctx context.Context, tx store.Tx, userID, currency string, amount decimal.Decimal) (wallet.Wallet, error) {
	w, err := tx.Wallets().GetForUpdate(ctx, userID, currency)
	if errors.Is(err, wallet.ErrNotFound) {
		return wallet.Wallet{}, &InsufficientFundsError{Currency: currency, Available: decimal.Zero}
	}
	if err != nil {
		return wallet.Wallet{}, err
	}
	if !w.Covers(amount) {
		return wallet.Wallet{}, &InsufficientFundsError{Currency: currency, Available: w.Balance}
	}
	return w, nil
}

// ownedKey scopes a client idempotency key to its owner.
func ownedKey(userID, key string) string {
	if key == "" {
		return ""
	}
	return userID + ":" + key
}

func appendRecord(ctx context.Context, tx store.Tx, rec ledger.Record) error {
	if err := tx.Ledger().Append(ctx, rec); err != nil {
		if errors.Is(err, ledger.ErrDuplicateKey) {
			return ErrConflict
		}
		return err
	}
	return nil
}

func (e *Engine) newRecord(userID string, typ ledger.Type, source, target string, amount decimal.Decimal, key string) ledger.Record {
	if key == "" {
		key = uuid.NewString()
	}
	return ledger.Record{
		ID:             uuid.NewString(),
		UserID:         userID,
		Type:           typ,
		Status:         ledger.StatusCompleted,
		SourceCurrency: source,
		TargetCurrency: target,
		Amount:         amount,
		Metadata:       map[string]any{},
		IdempotencyKey: key,
		CreatedAt:      e.now(),
	}
}

func (e *Engine) scopeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.cfg.OperationTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.cfg.OperationTimeout)
}

// finish classifies err, records the outcome and logs failures.
func (e *Engine) finish(ctx context.Context, op string, started time.Time, err error) error {
	if err == nil {
		e.metrics.RecordOperation(op, "success", time.Since(started))
		return nil
	}
	switch KindOf(err) {
	case KindValidation, KindInsufficientFunds, KindRateUnavailable, KindConflict:
		e.logger.WarnContext(ctx, "wallet operation rejected",
			slog.String("operation", op),
			slog.String("kind", KindOf(err)),
			slog.String("error", err.Error()))
	default:
		if !errors.Is(err, ErrOperationFailed) {
			err = failed(op, err)
		}
		e.logger.ErrorContext(ctx, "wallet operation failed",
			slog.String("operation", op),
			slog.Any("error", errors.Unwrap(err)))
	}
	e.metrics.RecordOperation(op, KindOf(err), time.Since(started))
	return err
}

func (e *Engine) notify(ctx context.Context, kind, userID, body string) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Send(context.WithoutCancel(ctx), notification.Message{
		Kind:        kind,
		Destination: userID,
		Body:        body,
	}); err != nil {
		e.logger.WarnContext(ctx, "notification failed", slog.String("kind", kind), slog.Any("error", err))
	}
}
