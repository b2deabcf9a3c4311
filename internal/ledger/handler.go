package ledger

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/fxwallet/internal/auth"
)

// Handler exposes the caller's transaction history.
type Handler struct {
	reader Reader
}

// NewHandler builds a history HTTP handler.
func NewHandler(reader Reader) *Handler {
	return &Handler{reader: reader}
}

type historyQuery struct {
	Page  int    `query:"page"`
	Limit int    `query:"limit"`
	Type  string `query:"type"`
}

// List returns a page of the caller's records, newest first.
func (h *Handler) List(c *fiber.Ctx) error {
	userID := auth.UserID(c)
	if userID == "" {
		return fiber.NewError(http.StatusUnauthorized, "missing user")
	}
	var q historyQuery
	if err := c.QueryParser(&q); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid query: "+err.Error())
	}
	filter := Filter{Page: q.Page, Limit: q.Limit, Type: Type(q.Type)}
	if filter.Type != "" && !filter.Type.Valid() {
		return fiber.NewError(http.StatusBadRequest, "unknown transaction type: "+q.Type)
	}

	page, err := h.reader.List(c.UserContext(), userID, filter)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(page)
}

// Get returns one record if it belongs to the caller.
func (h *Handler) Get(c *fiber.Ctx) error {
	userID := auth.UserID(c)
	if userID == "" {
		return fiber.NewError(http.StatusUnauthorized, "missing user")
	}
	rec, err := h.reader.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fiber.NewError(http.StatusNotFound, ErrNotFound.Error())
		}
		return err
	}
	if rec.UserID != userID {
		return fiber.NewError(http.StatusNotFound, ErrNotFound.Error())
	}
	return c.Status(http.StatusOK).JSON(rec)
}
