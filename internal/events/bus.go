package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrBusClosed is returned by Publish once the bus has stopped.
var ErrBusClosed = errors.New("event bus closed")

// BusConfig tunes the in-process bus.
type BusConfig struct {
	Buffer      int
	Workers     int
	MaxAttempts int
	Backoff     time.Duration
}

func (c BusConfig) withDefaults() BusConfig {
	if c.Buffer <= 0 {
		c.Buffer = 256
	}
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.Backoff <= 0 {
		c.Backoff = 100 * time.Millisecond
	}
	return c
}

// Bus is an in-process publisher with background workers. Each handler is retried with
// linear backoff until it succeeds or the attempts run out.
type Bus struct {
	cfg    BusConfig
	logger *slog.Logger

	mu       sync.RWMutex
	handlers map[string][]Handler
	closed   bool

	queue chan Event
	done  chan struct{}
}

// NewBus builds an idle bus. Call Run to start delivering.
func NewBus(cfg BusConfig, logger *slog.Logger) *Bus {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		cfg:      cfg,
		logger:   logger,
		handlers: make(map[string][]Handler),
		queue:    make(chan Event, cfg.Buffer),
		done:     make(chan struct{}),
	}
}

// Subscribe registers h for eventType.
func (b *Bus) Subscribe(eventType string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], h)
}

// Publish enqueues event, blocking while the buffer is full. An accepted event is
// delivered even when the bus stops right after.
func (b *Bus) Publish(ctx context.Context, event Event) error {
	// Run flips closed under the write lock, so every send made under the read lock
	// lands before the shutdown drain starts.
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrBusClosed
	}
	select {
	case b.queue <- event:
		return nil
	case <-b.done:
		return ErrBusClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run delivers queued events until ctx is cancelled, then drains what is already queued.
func (b *Bus) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < b.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case ev := <-b.queue:
					if err := b.Dispatch(ctx, ev); err != nil {
						b.logger.Error("event delivery failed", slog.String("event_id", ev.ID),
							slog.String("type", ev.Type), slog.Any("error", err))
					}
				case <-ctx.Done():
					return
				}
			}
		}()
	}
	<-ctx.Done()

	close(b.done)
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	wg.Wait()

	drainCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case ev := <-b.queue:
			if err := b.Dispatch(drainCtx, ev); err != nil {
				b.logger.Error("event dropped on shutdown", slog.String("event_id", ev.ID), slog.Any("error", err))
			}
		default:
			return
		}
	}
}

// Dispatch runs every handler subscribed to event.Type, retrying each one independently.
func (b *Bus) Dispatch(ctx context.Context, event Event) error {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers[event.Type]...)
	b.mu.RUnlock()

	var errs []error
	for _, h := range handlers {
		if err := b.deliver(ctx, h, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (b *Bus) deliver(ctx context.Context, h Handler, event Event) error {
	var err error
	for attempt := 1; attempt <= b.cfg.MaxAttempts; attempt++ {
		if err = h(ctx, event); err == nil {
			return nil
		}
		b.logger.Warn("event handler failed", slog.String("event_id", event.ID),
			slog.String("type", event.Type), slog.Int("attempt", attempt), slog.Any("error", err))
		if attempt == b.cfg.MaxAttempts {
			break
		}
		select {
		case <-time.After(time.Duration(attempt) * b.cfg.Backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("%s after %d attempts: %w", event.Type, b.cfg.MaxAttempts, err)
}
