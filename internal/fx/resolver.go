package fx

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/fxwallet/internal/metrics"
)

const (
	amountPlaces = 2
	ratePlaces   = 8
)

// Conversion is the outcome of ConvertAmount.
type Conversion struct {
	Amount decimal.Decimal
	Rate   decimal.Decimal
}

// ResolverConfig carries the resolver's tunables.
type ResolverConfig struct {
	BaseCurrency string
	CacheTTL     time.Duration
}

// Resolver serves rate tables and conversions. The cache is advisory: its failures are
// logged and only cost an upstream fetch, and upstream failures degrade to the static
// fallback table.
type Resolver struct {
	cache    Cache
	provider Provider
	base     string
	ttl      time.Duration
	fallback RateTable
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// NewResolver wires a resolver. cache may be nil, in which case every call goes upstream.
func NewResolver(cache Cache, provider Provider, cfg ResolverConfig, logger *slog.Logger, m *metrics.Metrics) *Resolver {
	base := Normalize(cfg.BaseCurrency)
	if base == "" {
		base = DefaultBaseCurrency
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		cache:    cache,
		provider: provider,
		base:     base,
		ttl:      cfg.CacheTTL,
		fallback: FallbackRates(base),
		logger:   logger,
		metrics:  m,
	}
}

// BaseCurrency returns the currency all tables are keyed to.
func (r *Resolver) BaseCurrency() string {
	return r.base
}

// GetRates returns the current rate table. It never fails.
func (r *Resolver) GetRates(ctx context.Context) RateTable {
	if r.cache != nil {
		table, err := r.cache.Get(ctx, r.base)
		switch {
		case err == nil && len(table) > 0:
			r.metrics.RecordRateSource(metrics.RateSourceCache)
			return table
		case err != nil && !errors.Is(err, ErrCacheMiss):
			r.metrics.RecordCacheError("get")
			r.logger.Warn("rate cache read failed, fetching fresh rates", slog.Any("error", err))
		}
	}

	table, err := r.fetch(ctx)
	if err != nil {
		r.metrics.RecordRateSource(metrics.RateSourceFallback)
		r.logger.Warn("fx provider unavailable, using fallback rates",
			slog.String("base", r.base), slog.Any("error", err))
		return r.fallback.Clone()
	}
	r.metrics.RecordRateSource(metrics.RateSourceUpstream)

	if r.cache != nil {
		if err := r.cache.Set(ctx, r.base, table, r.ttl); err != nil {
			r.metrics.RecordCacheError("set")
			r.logger.Warn("rate cache write failed, rates not cached", slog.Any("error", err))
		}
	}
	return table
}

func (r *Resolver) fetch(ctx context.Context) (RateTable, error) {
	if r.provider == nil {
		return nil, errors.New("no rate provider configured")
	}
	raw, err := r.provider.FetchRates(ctx, r.base)
	if err != nil {
		return nil, err
	}
	return normalize(raw, r.base)
}

// GetRate returns the value of one unit of base in currency.
func (r *Resolver) GetRate(ctx context.Context, currency string) (decimal.Decimal, error) {
	code := Normalize(currency)
	rate, ok := r.GetRates(ctx).Rate(code)
	if !ok {
		return decimal.Zero, &RateUnavailableError{Currency: code}
	}
	return rate, nil
}

// ConvertAmount converts amount from one currency to another through the base currency.
// The converted amount is rounded to 2 places and the pair rate to 8, half away from
// zero, after the full-precision computation.
func (r *Resolver) ConvertAmount(ctx context.Context, amount decimal.Decimal, from, to string) (Conversion, error) {
	from, to = Normalize(from), Normalize(to)
	if from == to {
		return Conversion{Amount: amount, Rate: decimal.NewFromInt(1)}, nil
	}

	table := r.GetRates(ctx)
	fromRate, ok := table.Rate(from)
	if !ok {
		return Conversion{}, &RateUnavailableError{Currency: from}
	}
	toRate, ok := table.Rate(to)
	if !ok {
		return Conversion{}, &RateUnavailableError{Currency: to}
	}

	amountInBase := amount.Div(fromRate)
	converted := amountInBase.Mul(toRate)
	pairRate := toRate.Div(fromRate)

	return Conversion{
		Amount: converted.Round(amountPlaces),
		Rate:   pairRate.Round(ratePlaces),
	}, nil
}

// SupportedCurrencies lists the codes present in the current rate table.
func (r *Resolver) SupportedCurrencies(ctx context.Context) []string {
	return r.GetRates(ctx).Currencies()
}
