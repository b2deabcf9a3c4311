package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/fxwallet/internal/auth"
	"github.com/congo-pay/fxwallet/internal/fx"
	"github.com/congo-pay/fxwallet/internal/middleware"
)

// Handler exposes the wallet write endpoints.
type Handler struct {
	engine   *Engine
	validate *validator.Validate
}

// NewHandler builds the HTTP surface for engine.
func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine, validate: newValidator()}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	if err := v.RegisterValidation("currency", func(fl validator.FieldLevel) bool {
		return fx.IsSupported(fx.Normalize(fl.Field().String()))
	}); err != nil {
		panic(fmt.Sprintf("register currency validation: %v", err))
	}
	return v
}

type fundRequest struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency" validate:"omitempty,currency"`
}

type withdrawRequest struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency" validate:"required,currency"`
}

type exchangeRequest struct {
	Amount       decimal.Decimal `json:"amount"`
	FromCurrency string          `json:"fromCurrency" validate:"required,currency"`
	ToCurrency   string          `json:"toCurrency" validate:"required,currency,nefield=FromCurrency"`
}

type balanceResponse struct {
	TransactionID string `json:"transactionId"`
	Currency      string `json:"currency"`
	Amount        string `json:"amount"`
	NewBalance    string `json:"newBalance"`
}

type exchangeResponse struct {
	TransactionID    string `json:"transactionId"`
	FromCurrency     string `json:"fromCurrency"`
	ToCurrency       string `json:"toCurrency"`
	AmountIn         string `json:"amountIn"`
	AmountReceived   string `json:"amountReceived"`
	ExchangeRate     string `json:"exchangeRate"`
	NewSourceBalance string `json:"newSourceBalance"`
	NewTargetBalance string `json:"newTargetBalance"`
}

// Fund credits the authenticated user's wallet.
func (h *Handler) Fund(c *fiber.Ctx) error {
	var req fundRequest
	if err := h.bind(c, &req); err != nil {
		return respondError(c, err)
	}
	result, err := h.engine.Fund(c.UserContext(), FundRequest{
		UserID:         auth.UserID(c),
		Currency:       req.Currency,
		Amount:         req.Amount,
		IdempotencyKey: idempotencyKey(c),
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(http.StatusCreated).JSON(toBalanceResponse(result))
}

// Withdraw debits the authenticated user's wallet.
func (h *Handler) Withdraw(c *fiber.Ctx) error {
	var req withdrawRequest
	if err := h.bind(c, &req); err != nil {
		return respondError(c, err)
	}
	result, err := h.engine.Withdraw(c.UserContext(), WithdrawRequest{
		UserID:         auth.UserID(c),
		Currency:       req.Currency,
		Amount:         req.Amount,
		IdempotencyKey: idempotencyKey(c),
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(http.StatusOK).JSON(toBalanceResponse(result))
}

// Convert exchanges between two of the user's wallets.
func (h *Handler) Convert(c *fiber.Ctx) error {
	return h.exchange(c, h.engine.Convert)
}

// Trade buys or sells a currency against the base currency.
func (h *Handler) Trade(c *fiber.Ctx) error {
	return h.exchange(c, h.engine.Trade)
}

func (h *Handler) exchange(c *fiber.Ctx, run func(ctx context.Context, req ExchangeRequest) (ExchangeResult, error)) error {
	var req exchangeRequest
	if err := h.bind(c, &req); err != nil {
		return respondError(c, err)
	}
	result, err := run(c.UserContext(), ExchangeRequest{
		UserID:         auth.UserID(c),
		From:           req.FromCurrency,
		To:             req.ToCurrency,
		Amount:         req.Amount,
		IdempotencyKey: idempotencyKey(c),
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(http.StatusOK).JSON(exchangeResponse{
		TransactionID:    result.TransactionID,
		FromCurrency:     result.FromCurrency,
		ToCurrency:       result.ToCurrency,
		AmountIn:         result.AmountIn.StringFixed(2),
		AmountReceived:   result.AmountReceived.StringFixed(2),
		ExchangeRate:     result.ExchangeRate.StringFixed(8),
		NewSourceBalance: result.NewSourceBalance.StringFixed(2),
		NewTargetBalance: result.NewTargetBalance.StringFixed(2),
	})
}

func (h *Handler) bind(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return &ValidationError{Message: "invalid request body"}
	}
	if err := h.validate.Struct(out); err != nil {
		var fields validator.ValidationErrors
		if errors.As(err, &fields) && len(fields) > 0 {
			f := fields[0]
			switch f.Tag() {
			case "required":
				return invalid(f.Field(), "is required")
			case "currency":
				return invalid(f.Field(), "unsupported currency %v", f.Value())
			case "nefield":
				return invalid(f.Field(), "must differ from %s", "fromCurrency")
			}
			return invalid(f.Field(), "failed %s validation", f.Tag())
		}
		return &ValidationError{Message: err.Error()}
	}
	return nil
}

func idempotencyKey(c *fiber.Ctx) string {
	return strings.TrimSpace(c.Get(middleware.IdempotencyKeyHeader))
}

func toBalanceResponse(result FundResult) balanceResponse {
	return balanceResponse{
		TransactionID: result.TransactionID,
		Currency:      result.Currency,
		Amount:        result.Amount.StringFixed(2),
		NewBalance:    result.NewBalance.StringFixed(2),
	}
}

func respondError(c *fiber.Ctx, err error) error {
	return c.Status(StatusOf(err)).JSON(fiber.Map{
		"error": fiber.Map{
			"kind":    KindOf(err),
			"message": Message(err),
		},
	})
}
