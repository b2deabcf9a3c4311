package fx

import (
	"errors"
	"fmt"
)

var (
	// ErrRateUnavailable is matched by every RateUnavailableError.
	ErrRateUnavailable = errors.New("rate unavailable")

	// ErrCacheMiss is returned by caches holding no live rate table.
	ErrCacheMiss = errors.New("rate cache miss")
)

// RateUnavailableError reports a currency with no entry in the resolved rate table.
type RateUnavailableError struct {
	Currency string
}

func (e *RateUnavailableError) Error() string {
	return fmt.Sprintf("rate not available for currency: %s", e.Currency)
}

// Is makes errors.Is(err, ErrRateUnavailable) hold.
func (e *RateUnavailableError) Is(target error) bool {
	return target == ErrRateUnavailable
}
