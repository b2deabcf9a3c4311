package auth

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/fxwallet/internal/identity"
)

// Handler exposes auth endpoints for login/refresh/logout.
type Handler struct {
	ids *identity.Service
	svc *Service
}

func NewHandler(ids *identity.Service, svc *Service) *Handler {
	return &Handler{ids: ids, svc: svc}
}

type loginRequest struct {
	Phone    string `json:"phone"`
	PIN      string `json:"pin"`
	DeviceID string `json:"device_id"`
}

type loginResponse struct {
	UserID string `json:"user_id"`
	TokenPair
}

// Login validates credentials and returns a token pair.
func (h *Handler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	user, err := h.ids.Authenticate(c.UserContext(), identity.Credentials{Phone: req.Phone, PIN: req.PIN, DeviceID: req.DeviceID})
	if err != nil {
		return identity.MapError(err)
	}
	pair, err := h.svc.Login(user)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(loginResponse{UserID: user.ID, TokenPair: pair})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Refresh issues a new token pair using a valid refresh token.
func (h *Handler) Refresh(c *fiber.Ctx) error {
	var req refreshRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	pair, err := h.svc.Refresh(c.UserContext(), req.RefreshToken)
	if err != nil {
		return fiber.NewError(http.StatusUnauthorized, err.Error())
	}
	return c.Status(http.StatusOK).JSON(pair)
}

// Logout invalidates the caller's existing tokens.
func (h *Handler) Logout(c *fiber.Ctx) error {
	userID := UserID(c)
	if userID == "" {
		return fiber.NewError(http.StatusUnauthorized, "missing user")
	}
	if err := h.svc.Logout(c.UserContext(), userID); err != nil {
		return identity.MapError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"status": "logged_out"})
}
