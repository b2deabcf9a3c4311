package notification

import (
	"context"
	"log/slog"
)

const (
	// KindVerificationCode carries a one-time verification code to a user.
	KindVerificationCode = "verification_code"
	// KindWalletFunded follows a committed funding or wallet initialization.
	KindWalletFunded = "wallet_funded"
	// KindWalletExchanged follows a committed conversion or trade.
	KindWalletExchanged = "wallet_exchanged"
	// KindWalletWithdrawn follows a committed withdrawal.
	KindWalletWithdrawn = "wallet_withdrawn"
)

// Message describes a notification payload.
type Message struct {
	Kind        string
	Destination string
	Body        string
}

// Notifier delivers notifications to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier is a stub implementation that writes notifications to the logger.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier stub.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(ctx context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.InfoContext(ctx, "notification",
		slog.String("kind", message.Kind),
		slog.String("destination", message.Destination),
		slog.String("body", message.Body))
	return nil
}

// Recorder keeps sent messages in memory.
type Recorder struct {
	messages chan Message
}

// NewRecorder builds a recorder holding up to size unread messages; further sends are dropped.
func NewRecorder(size int) *Recorder {
	return &Recorder{messages: make(chan Message, size)}
}

func (r *Recorder) Send(_ context.Context, message Message) error {
	select {
	case r.messages <- message:
	default:
	}
	return nil
}

// Messages exposes the recorded stream.
func (r *Recorder) Messages() <-chan Message {
	return r.messages
}
