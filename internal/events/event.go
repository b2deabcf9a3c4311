package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TypeUserVerified is emitted once a user completes verification.
const TypeUserVerified = "user.verified"

// Event is the envelope carried by every transport.
type Event struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Subject    string          `json:"subject"`
	Payload    json.RawMessage `json:"payload"`
	OccurredAt time.Time       `json:"occurredAt"`
}

// UserVerifiedPayload is the body of a user.verified event.
type UserVerifiedPayload struct {
	UserID string `json:"userId"`
}

// New wraps payload in an envelope keyed by subject.
func New(eventType, subject string, payload any) (Event, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("encode %s payload: %w", eventType, err)
	}
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		Subject:    subject,
		Payload:    body,
		OccurredAt: time.Now().UTC(),
	}, nil
}

// NewUserVerified builds a user.verified event.
func NewUserVerified(userID string) (Event, error) {
	return New(TypeUserVerified, userID, UserVerifiedPayload{UserID: userID})
}

// Decode unmarshals the payload into v.
func (e Event) Decode(v any) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return nil
}

// Publisher hands events to a transport.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Handler consumes one event. Handlers must tolerate redelivery.
type Handler func(ctx context.Context, event Event) error

// Dispatcher delivers an event to its subscribers synchronously.
type Dispatcher interface {
	Dispatch(ctx context.Context, event Event) error
}
