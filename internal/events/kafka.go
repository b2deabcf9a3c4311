package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

const eventTypeHeader = "event-type"

// KafkaPublisher writes events to one topic, keyed by subject so a user's events stay
// in order on a single partition.
type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher builds a publisher for topic.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{writer: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		MaxAttempts:            5,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event Event) error {
	msg, err := encodeMessage(event)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	return nil
}

// Close flushes pending writes.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func encodeMessage(event Event) (kafka.Message, error) {
	value, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode event: %w", err)
	}
	return kafka.Message{
		Key:     []byte(event.Subject),
		Value:   value,
		Time:    event.OccurredAt,
		Headers: []kafka.Header{{Key: eventTypeHeader, Value: []byte(event.Type)}},
	}, nil
}

func decodeMessage(msg kafka.Message) (Event, error) {
	var event Event
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return Event{}, fmt.Errorf("decode event at offset %d: %w", msg.Offset, err)
	}
	if event.Type == "" {
		for _, h := range msg.Headers {
			if h.Key == eventTypeHeader {
				event.Type = string(h.Value)
			}
		}
	}
	return event, nil
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConsumer feeds a consumer group's messages to a Dispatcher. An offset is
// committed only after dispatch succeeds, so failures are redelivered.
type KafkaConsumer struct {
	reader     messageReader
	dispatcher Dispatcher
	logger     *slog.Logger
	backoff    time.Duration
}

// NewKafkaConsumer joins groupID on topic.
func NewKafkaConsumer(brokers []string, topic, groupID string, dispatcher Dispatcher, logger *slog.Logger) *KafkaConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		Topic:       topic,
		GroupID:     groupID,
		StartOffset: kafka.FirstOffset,
		MaxWait:     time.Second,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Error(fmt.Sprintf(msg, args...))
		}),
	})
	return newKafkaConsumer(reader, dispatcher, logger)
}

func newKafkaConsumer(reader messageReader, dispatcher Dispatcher, logger *slog.Logger) *KafkaConsumer {
	return &KafkaConsumer{reader: reader, dispatcher: dispatcher, logger: logger, backoff: time.Second}
}

// Run consumes until ctx is cancelled. A message whose dispatch keeps failing is retried
// in place and blocks its partition.
func (c *KafkaConsumer) Run(ctx context.Context) error {
	defer c.reader.Close()
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("fetch message: %w", err)
		}

		event, err := decodeMessage(msg)
		if err != nil {
			// unreadable payloads are skipped; they can never succeed
			c.logger.Error("discarding malformed event", slog.Int64("offset", msg.Offset), slog.Any("error", err))
		} else if err := c.dispatchUntilDone(ctx, event); err != nil {
			return nil
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("commit offset %d: %w", msg.Offset, err)
		}
	}
}

func (c *KafkaConsumer) dispatchUntilDone(ctx context.Context, event Event) error {
	for {
		err := c.dispatcher.Dispatch(ctx, event)
		if err == nil {
			return nil
		}
		c.logger.Error("event dispatch failed, retrying", slog.String("event_id", event.ID),
			slog.String("type", event.Type), slog.Any("error", err))
		select {
		case <-time.After(c.backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
