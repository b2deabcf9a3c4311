package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/congo-pay/fxwallet/internal/config"
	"github.com/congo-pay/fxwallet/internal/identity"
)

const (
	issuer           = "fxwallet"
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrTokenInvalidated = errors.New("token invalidated")
)

// Claims are carried by access and refresh tokens.
type Claims struct {
	jwt.RegisteredClaims
	TokenVersion int    `json:"ver"`
	TokenType    string `json:"typ"`
}

// TokenPair is returned by Login and Refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Service issues and checks HS256 tokens.
type Service struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	users      identity.Repository
	now        func() time.Time
}

// NewService builds a token service from configuration.
func NewService(cfg config.Config, users identity.Repository) *Service {
	return &Service{
		secret:     []byte(cfg.JWTSecret),
		accessTTL:  cfg.AccessTokenTTL,
		refreshTTL: cfg.RefreshTokenTTL,
		users:      users,
		now:        time.Now,
	}
}

// Login issues a token pair for an authenticated user.
func (s *Service) Login(user identity.User) (TokenPair, error) {
	access, err := s.sign(user.ID, user.TokenVersion, tokenTypeAccess, s.accessTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := s.sign(user.ID, user.TokenVersion, tokenTypeRefresh, s.refreshTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh, ExpiresIn: int64(s.accessTTL.Seconds())}, nil
}

// Authenticate validates an access token and returns its still-current user.
func (s *Service) Authenticate(ctx context.Context, token string) (identity.User, error) {
	return s.resolve(ctx, token, tokenTypeAccess)
}

// Refresh exchanges a valid refresh token for a new pair.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	user, err := s.resolve(ctx, refreshToken, tokenTypeRefresh)
	if err != nil {
		return TokenPair{}, err
	}
	return s.Login(user)
}

// Logout bumps the token version so older tokens stop working.
func (s *Service) Logout(ctx context.Context, userID string) error {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	return s.users.UpdateTokenVersion(ctx, user.ID, user.TokenVersion+1)
}

func (s *Service) sign(subject string, version int, tokenType string, ttl time.Duration) (string, error) {
	now := s.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		TokenVersion: version,
		TokenType:    tokenType,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", tokenType, err)
	}
	return signed, nil
}

func (s *Service) parse(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(s.now))
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (s *Service) resolve(ctx context.Context, token, tokenType string) (identity.User, error) {
	claims, err := s.parse(token)
	if err != nil {
		return identity.User{}, err
	}
	if claims.TokenType != tokenType {
		return identity.User{}, ErrInvalidToken
	}
	user, err := s.users.FindByID(ctx, claims.Subject)
	if err != nil {
		return identity.User{}, ErrTokenInvalidated
	}
	if user.TokenVersion != claims.TokenVersion {
		return identity.User{}, ErrTokenInvalidated
	}
	return user, nil
}
