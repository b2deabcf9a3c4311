package identity

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes identity endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs an identity HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type registerRequest struct {
	Phone    string `json:"phone"`
	PIN      string `json:"pin"`
	DeviceID string `json:"device_id"`
}

type verifyRequest struct {
	Phone string `json:"phone"`
	Code  string `json:"code"`
}

type userResponse struct {
	UserID   string `json:"user_id"`
	Phone    string `json:"phone"`
	Verified bool   `json:"verified"`
}

// Register handles user onboarding.
func (h *Handler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	user, err := h.service.Register(c.UserContext(), Credentials{Phone: req.Phone, PIN: req.PIN, DeviceID: req.DeviceID})
	if err != nil {
		return MapError(err)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"message": "registration successful, a verification code has been sent",
		"user":    userResponse{UserID: user.ID, Phone: user.Phone},
	})
}

// Verify consumes a verification code.
func (h *Handler) Verify(c *fiber.Ctx) error {
	var req verifyRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	user, err := h.service.Verify(c.UserContext(), req.Phone, req.Code)
	if err != nil {
		return MapError(err)
	}
	return c.Status(http.StatusOK).JSON(userResponse{UserID: user.ID, Phone: user.Phone, Verified: user.Verified})
}

// Resend issues a fresh verification code.
func (h *Handler) Resend(c *fiber.Ctx) error {
	var req verifyRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := h.service.ResendCode(c.UserContext(), req.Phone); err != nil {
		return MapError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"message": "verification code sent"})
}

// MapError translates identity errors into HTTP errors.
func MapError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidPhone), errors.Is(err, ErrInvalidPIN), errors.Is(err, ErrInvalidCode),
		errors.Is(err, ErrCodeExpired), errors.Is(err, ErrAlreadyVerified):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrUserExists):
		return fiber.NewError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrUserNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrDeviceMismatch):
		return fiber.NewError(http.StatusUnauthorized, err.Error())
	case errors.Is(err, ErrNotVerified):
		return fiber.NewError(http.StatusForbidden, err.Error())
	}
	return err
}
