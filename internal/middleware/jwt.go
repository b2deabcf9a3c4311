package middleware

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/fxwallet/internal/auth"
)

// JWTAuth validates bearer access tokens and exposes the caller through auth.UserID.
func JWTAuth(tokens *auth.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authz := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		tokenStr := strings.TrimSpace(authz[len("Bearer "):])

		user, err := tokens.Authenticate(c.UserContext(), tokenStr)
		if err != nil {
			return fiber.NewError(http.StatusUnauthorized, err.Error())
		}

		c.Locals(auth.LocalUserID, user.ID)
		c.Locals(auth.LocalVerified, user.Verified)
		c.Locals(auth.LocalTokenVersion, user.TokenVersion)
		return c.Next()
	}
}

// RequireVerified rejects callers who have not completed verification. It must run after JWTAuth.
func RequireVerified() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if auth.UserID(c) == "" {
			return fiber.NewError(http.StatusUnauthorized, "missing user")
		}
		if !auth.Verified(c) {
			return fiber.NewError(http.StatusForbidden, "account is not verified")
		}
		return c.Next()
	}
}
