package ledger

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrDuplicateKey indicates the idempotency key already belongs to a record.
	ErrDuplicateKey = errors.New("duplicate idempotency key")
	// ErrNotFound is returned when a record does not exist or is not visible to the caller.
	ErrNotFound = errors.New("transaction not found")
)

// Type classifies what a record describes.
type Type string

const (
	TypeFunding    Type = "funding"
	TypeConversion Type = "conversion"
	TypeTrade      Type = "trade"
	TypeWithdrawal Type = "withdrawal"
)

// Valid reports whether t is a known record type.
func (t Type) Valid() bool {
	switch t {
	case TypeFunding, TypeConversion, TypeTrade, TypeWithdrawal:
		return true
	}
	return false
}

// Status tracks a record's settlement state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Record is an immutable audit entry for one engine operation.
type Record struct {
	ID              string              `json:"id"`
	UserID          string              `json:"userId"`
	Type            Type                `json:"type"`
	Status          Status              `json:"status"`
	SourceCurrency  string              `json:"sourceCurrency"`
	TargetCurrency  string              `json:"targetCurrency,omitempty"`
	Amount          decimal.Decimal     `json:"amount"`
	ConvertedAmount decimal.NullDecimal `json:"convertedAmount"`
	ExchangeRate    decimal.NullDecimal `json:"exchangeRate"`
	Description     string              `json:"description"`
	Metadata        map[string]any      `json:"metadata"`
	IdempotencyKey  string              `json:"idempotencyKey,omitempty"`
	CreatedAt       time.Time           `json:"createdAt"`
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Filter selects a page of a user's history, newest first.
type Filter struct {
	Page  int
	Limit int
	Type  Type
}

// Normalize applies paging defaults and bounds.
func (f Filter) Normalize() Filter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = defaultPageSize
	}
	if f.Limit > maxPageSize {
		f.Limit = maxPageSize
	}
	return f
}

// Offset is the number of records skipped before the page.
func (f Filter) Offset() int {
	return (f.Page - 1) * f.Limit
}

// Page is one slice of history plus the total matching count.
type Page struct {
	Data  []Record `json:"data"`
	Total int      `json:"total"`
	Page  int      `json:"page"`
	Limit int      `json:"limit"`
}
