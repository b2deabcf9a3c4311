package ledger

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/fxwallet/internal/auth"
)

type stubReader struct {
	records    []Record
	lastFilter Filter
}

func (s *stubReader) List(_ context.Context, userID string, filter Filter) (Page, error) {
	s.lastFilter = filter
	filter = filter.Normalize()
	var out []Record
	for _, rec := range s.records {
		if rec.UserID == userID && (filter.Type == "" || rec.Type == filter.Type) {
			out = append(out, rec)
		}
	}
	return Page{Data: out, Total: len(out), Page: filter.Page, Limit: filter.Limit}, nil
}

func (s *stubReader) Get(_ context.Context, id string) (Record, error) {
	for _, rec := range s.records {
		if rec.ID == id {
			return rec, nil
		}
	}
	return Record{}, ErrNotFound
}

func newHistoryApp(reader Reader, userID string) *fiber.App {
	h := NewHandler(reader)
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals(auth.LocalUserID, userID)
		return c.Next()
	})
	app.Get("/transactions", h.List)
	app.Get("/transactions/:id", h.Get)
	return app
}

func sampleRecords() []Record {
	return []Record{
		{ID: "t1", UserID: "alice", Type: TypeFunding, Status: StatusCompleted, SourceCurrency: "NGN", Amount: decimal.NewFromInt(100)},
		{ID: "t2", UserID: "alice", Type: TypeConversion, Status: StatusCompleted, SourceCurrency: "NGN", TargetCurrency: "USD",
			Amount: decimal.NewFromInt(50), ConvertedAmount: decimal.NewNullDecimal(decimal.RequireFromString("0.03"))},
		{ID: "t3", UserID: "bob", Type: TypeFunding, Status: StatusCompleted, SourceCurrency: "EUR", Amount: decimal.NewFromInt(5)},
	}
}

func TestHistoryListFiltersByType(t *testing.T) {
	reader := &stubReader{records: sampleRecords()}
	app := newHistoryApp(reader, "alice")

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/transactions?type=conversion&page=2&limit=5", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var page Page
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&page))
	require.Len(t, page.Data, 1)
	assert.Equal(t, "t2", page.Data[0].ID)
	assert.Equal(t, Filter{Page: 2, Limit: 5, Type: TypeConversion}, reader.lastFilter)
}

func TestHistoryListRejectsUnknownType(t *testing.T) {
	app := newHistoryApp(&stubReader{}, "alice")

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/transactions?type=refund", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestHistoryGetHidesOtherUsersRecords(t *testing.T) {
	app := newHistoryApp(&stubReader{records: sampleRecords()}, "alice")

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/transactions/t3", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(fiber.MethodGet, "/transactions/t1", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestFilterNormalize(t *testing.T) {
	assert.Equal(t, Filter{Page: 1, Limit: 20}, Filter{}.Normalize())
	assert.Equal(t, Filter{Page: 3, Limit: 100}, Filter{Page: 3, Limit: 500}.Normalize())
	assert.Equal(t, 40, Filter{Page: 3, Limit: 20}.Offset())
}
