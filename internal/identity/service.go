package identity

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/congo-pay/fxwallet/internal/events"
	"github.com/congo-pay/fxwallet/internal/notification"
)

const codeDigits = 6

// Service manages registration, verification and credential checks.
type Service struct {
	repo      Repository
	publisher events.Publisher
	notifier  notification.Notifier
	codeTTL   time.Duration
	logger    *slog.Logger

	now     func() time.Time
	newCode func() (string, error)
}

// NewService creates a new identity service. Verified users are announced on publisher.
func NewService(repo Repository, publisher events.Publisher, notifier notification.Notifier, codeTTL time.Duration, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      repo,
		publisher: publisher,
		notifier:  notifier,
		codeTTL:   codeTTL,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
		newCode:   randomCode,
	}
}

// Register creates an unverified user and sends a verification code.
func (s *Service) Register(ctx context.Context, creds Credentials) (User, error) {
	phone := strings.TrimSpace(creds.Phone)
	if phone == "" {
		return User{}, ErrInvalidPhone
	}
	if !validPIN(creds.PIN) {
		return User{}, ErrInvalidPIN
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(creds.PIN), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}

	user := User{
		ID:        uuid.New().String(),
		Phone:     phone,
		PINHash:   hash,
		DeviceID:  creds.DeviceID,
		CreatedAt: s.now(),
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return User{}, err
	}
	if err := s.issueCode(ctx, user); err != nil {
		return User{}, err
	}
	return user, nil
}

// ResendCode replaces the pending code of an unverified user.
func (s *Service) ResendCode(ctx context.Context, phone string) error {
	user, err := s.repo.FindByPhone(ctx, strings.TrimSpace(phone))
	if err != nil {
		return err
	}
	if user.Verified {
		return ErrAlreadyVerified
	}
	return s.issueCode(ctx, user)
}

// Verify checks code and marks the user verified. user.verified is published before the
// flag is stored, so a failed publish leaves the user able to retry.
func (s *Service) Verify(ctx context.Context, phone, code string) (User, error) {
	user, err := s.repo.FindByPhone(ctx, strings.TrimSpace(phone))
	if err != nil {
		return User{}, err
	}
	if user.Verified {
		return User{}, ErrAlreadyVerified
	}
	if len(user.CodeHash) == 0 || !s.now().Before(user.CodeExpiresAt) {
		return User{}, ErrCodeExpired
	}
	if err := bcrypt.CompareHashAndPassword(user.CodeHash, []byte(code)); err != nil {
		return User{}, ErrInvalidCode
	}

	event, err := events.NewUserVerified(user.ID)
	if err != nil {
		return User{}, err
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		return User{}, fmt.Errorf("publish user verified: %w", err)
	}

	at := s.now()
	if err := s.repo.MarkVerified(ctx, user.ID, at); err != nil {
		return User{}, err
	}
	user.Verified = true
	user.VerifiedAt = at
	user.CodeHash = nil
	s.logger.Info("user verified", slog.String("user_id", user.ID))
	return user, nil
}

// Authenticate verifies credentials and device binding.
func (s *Service) Authenticate(ctx context.Context, creds Credentials) (User, error) {
	user, err := s.repo.FindByPhone(ctx, strings.TrimSpace(creds.Phone))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return User{}, ErrInvalidCredentials
		}
		return User{}, err
	}

	if err := bcrypt.CompareHashAndPassword(user.PINHash, []byte(creds.PIN)); err != nil {
		return User{}, ErrInvalidCredentials
	}
	if !user.Verified {
		return User{}, ErrNotVerified
	}

	if user.DeviceID == "" {
		if creds.DeviceID != "" {
			if err := s.repo.UpdateDevice(ctx, user.ID, creds.DeviceID); err != nil {
				return User{}, err
			}
			user.DeviceID = creds.DeviceID
		}
	} else if creds.DeviceID != "" && user.DeviceID != creds.DeviceID {
		return User{}, ErrDeviceMismatch
	}

	return user, nil
}

func (s *Service) issueCode(ctx context.Context, user User) error {
	code, err := s.newCode()
	if err != nil {
		return fmt.Errorf("generate verification code: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	if err := s.repo.SetVerificationCode(ctx, user.ID, hash, s.now().Add(s.codeTTL)); err != nil {
		return err
	}
	if s.notifier != nil {
		if err := s.notifier.Send(ctx, notification.Message{
			Kind:        notification.KindVerificationCode,
			Destination: user.Phone,
			Body:        code,
		}); err != nil {
			s.logger.Warn("verification code delivery failed", slog.String("user_id", user.ID), slog.Any("error", err))
		}
	}
	return nil
}

func validPIN(pin string) bool {
	if len(pin) < 4 || len(pin) > 6 {
		return false
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func randomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", codeDigits, n.Int64()), nil
}
