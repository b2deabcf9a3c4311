package engine

import (
	"context"
	"errors"
	"log/slog"

	"github.com/congo-pay/fxwallet/internal/events"
)

// Subscriber is the part of an event bus the listener registers with.
type Subscriber interface {
	Subscribe(eventType string, h events.Handler)
}

// Listener opens wallets for newly verified users.
type Listener struct {
	engine *Engine
	logger *slog.Logger
}

// NewListener builds a listener over engine.
func NewListener(engine *Engine, logger *slog.Logger) *Listener {
	return &Listener{engine: engine, logger: logger}
}

// Register subscribes the listener to user.verified.
func (l *Listener) Register(bus Subscriber) {
	bus.Subscribe(events.TypeUserVerified, l.HandleUserVerified)
}

// HandleUserVerified initializes the user's wallet. Redelivered events hit the
// initialization key and are treated as done.
func (l *Listener) HandleUserVerified(ctx context.Context, event events.Event) error {
	var payload events.UserVerifiedPayload
	if err := event.Decode(&payload); err != nil {
		l.logger.WarnContext(ctx, "dropping malformed user.verified event",
			slog.String("event_id", event.ID), slog.Any("error", err))
		return nil
	}
	if payload.UserID == "" {
		payload.UserID = event.Subject
	}

	result, err := l.engine.InitializeWallet(ctx, payload.UserID)
	switch {
	case errors.Is(err, ErrConflict):
		l.logger.InfoContext(ctx, "wallet already initialized", slog.String("user_id", payload.UserID))
		return nil
	case KindOf(err) == KindValidation:
		l.logger.WarnContext(ctx, "dropping user.verified event without user id", slog.String("event_id", event.ID))
		return nil
	case err != nil:
		return err
	}
	l.logger.InfoContext(ctx, "wallet initialized",
		slog.String("user_id", payload.UserID),
		slog.String("currency", result.Currency),
		slog.String("balance", result.NewBalance.StringFixed(2)))
	return nil
}
