package auth

import "github.com/gofiber/fiber/v2"

// Locals keys set by the JWT middleware.
const (
	LocalUserID       = "user_id"
	LocalVerified     = "verified"
	LocalTokenVersion = "token_version"
)

// UserID returns the authenticated user id, or "" when the request is anonymous.
func UserID(c *fiber.Ctx) string {
	id, _ := c.Locals(LocalUserID).(string)
	return id
}

// Verified reports whether the authenticated user completed verification.
func Verified(c *fiber.Ctx) bool {
	ok, _ := c.Locals(LocalVerified).(bool)
	return ok
}
