package identity

import (
	"errors"
	"time"
)

var (
	ErrUserExists         = errors.New("user already exists")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid phone or PIN")
	ErrInvalidPIN         = errors.New("PIN must be 4 to 6 digits")
	ErrInvalidPhone       = errors.New("phone number is required")
	ErrAlreadyVerified    = errors.New("user is already verified")
	ErrNotVerified        = errors.New("user is not verified")
	ErrInvalidCode        = errors.New("invalid verification code")
	ErrCodeExpired        = errors.New("verification code expired")
	ErrDeviceMismatch     = errors.New("device mismatch")
)

// User represents a registered wallet owner.
type User struct {
	ID            string
	Phone         string
	PINHash       []byte
	DeviceID      string
	Verified      bool
	TokenVersion  int
	CodeHash      []byte
	CodeExpiresAt time.Time
	CreatedAt     time.Time
	VerifiedAt    time.Time
}

// Credentials request structure.
type Credentials struct {
	Phone    string
	PIN      string
	DeviceID string
}
