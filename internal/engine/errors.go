package engine

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/fxwallet/internal/fx"
)

// Error kinds exposed to callers and in HTTP error bodies.
const (
	KindValidation        = "validation"
	KindInsufficientFunds = "insufficient_funds"
	KindRateUnavailable   = "rate_unavailable"
	KindConflict          = "conflict"
	KindOperationFailed   = "operation_failed"
)

var (
	// ErrInsufficientFunds is matched by every InsufficientFundsError.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrConflict reports an idempotency key that was already processed.
	ErrConflict = errors.New("operation already processed")
	// ErrOperationFailed is matched by every OperationFailedError.
	ErrOperationFailed = errors.New("operation failed")
)

// ValidationError rejects a request before any scope is opened.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// InsufficientFundsError carries the balance that was available when the debit was refused.
type InsufficientFundsError struct {
	Currency  string
	Available decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient %s balance: available %s", e.Currency, e.Available.StringFixed(2))
}

func (e *InsufficientFundsError) Is(target error) bool {
	return target == ErrInsufficientFunds
}

// OperationFailedError hides an unexpected storage or infrastructure failure behind a
// generic message. The cause stays reachable through errors.Is and errors.As.
type OperationFailedError struct {
	Op    string
	cause error
}

func failed(op string, cause error) error {
	return &OperationFailedError{Op: op, cause: cause}
}

func (e *OperationFailedError) Error() string {
	return e.Op + " failed"
}

func (e *OperationFailedError) Unwrap() error { return e.cause }

func (e *OperationFailedError) Is(target error) bool {
	return target == ErrOperationFailed
}

// KindOf classifies err into one of the Kind constants.
func KindOf(err error) string {
	var validation *ValidationError
	switch {
	case errors.As(err, &validation):
		return KindValidation
	case errors.Is(err, ErrInsufficientFunds):
		return KindInsufficientFunds
	case errors.Is(err, fx.ErrRateUnavailable):
		return KindRateUnavailable
	case errors.Is(err, ErrConflict):
		return KindConflict
	default:
		return KindOperationFailed
	}
}

// StatusOf maps err to the HTTP status its kind is reported with.
func StatusOf(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindInsufficientFunds:
		return http.StatusUnprocessableEntity
	case KindRateUnavailable:
		return http.StatusServiceUnavailable
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Message is the text safe to show a client for err.
func Message(err error) string {
	if KindOf(err) == KindOperationFailed {
		var op *OperationFailedError
		if errors.As(err, &op) {
			return op.Error()
		}
		return "internal server error"
	}
	return err.Error()
}
