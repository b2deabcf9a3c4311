package engine

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/fxwallet/internal/events"
	"github.com/congo-pay/fxwallet/internal/logging"
)

func TestListenerInitializesWalletAndToleratesRedelivery(t *testing.T) {
	f := newFixture(t)
	listener := NewListener(f.engine, logging.Discard())

	ev, err := events.NewUserVerified(user)
	require.NoError(t, err)

	require.NoError(t, listener.HandleUserVerified(context.Background(), ev))
	require.NoError(t, listener.HandleUserVerified(context.Background(), ev))

	assert.True(t, f.balance(t, "NGN").Equal(dec("100")))
	assert.Equal(t, 1, f.history(t).Total)
}

func TestListenerDropsMalformedEvents(t *testing.T) {
	f := newFixture(t)
	listener := NewListener(f.engine, logging.Discard())

	bad := events.Event{ID: "e1", Type: events.TypeUserVerified, Payload: json.RawMessage(`{"userId":`)}
	require.NoError(t, listener.HandleUserVerified(context.Background(), bad))

	empty := events.Event{ID: "e2", Type: events.TypeUserVerified, Payload: json.RawMessage(`{}`)}
	require.NoError(t, listener.HandleUserVerified(context.Background(), empty))
	assert.Zero(t, f.history(t).Total)
}

func TestListenerThroughBus(t *testing.T) {
	f := newFixture(t)
	bus := events.NewBus(events.BusConfig{Workers: 1, MaxAttempts: 1}, logging.Discard())
	NewListener(f.engine, logging.Discard()).Register(bus)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		bus.Run(ctx)
		close(done)
	}()

	ev, err := events.NewUserVerified(user)
	require.NoError(t, err)
	require.NoError(t, bus.Publish(context.Background(), ev))

	require.Eventually(t, func() bool {
		return f.balance(t, "NGN").Equal(dec("100"))
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done
}
