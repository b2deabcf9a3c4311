package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/fxwallet/internal/auth"
	"github.com/congo-pay/fxwallet/internal/identity"
)

// RegisterIdentityRoutes wires registration and verification endpoints.
func RegisterIdentityRoutes(r fiber.Router, h *identity.Handler) {
	group := r.Group("/identity")
	group.Post("/register", h.Register)
	group.Post("/verify", h.Verify)
	group.Post("/resend", h.Resend)
}

// RegisterAuthRoutes wires authentication endpoints.
func RegisterAuthRoutes(r fiber.Router, h *auth.Handler, rateLimiter, jwt fiber.Handler) {
	group := r.Group("/auth")
	if rateLimiter != nil {
		group.Post("/login", rateLimiter, h.Login)
	} else {
		group.Post("/login", h.Login)
	}
	group.Post("/refresh", h.Refresh)
	group.Post("/logout", jwt, h.Logout)
}
