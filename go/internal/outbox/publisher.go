package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/segmentio/kafka-go"

	"github.com/tmarsh12/livestage/go/internal/events"
)

// EventPublisher pushes outbox events onto the realtime distribution
// channel.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// MockPublisher is a simple logging publisher for development/testing.
type MockPublisher struct {
	logger *slog.Logger
}

func NewMockPublisher(logger *slog.Logger) *MockPublisher {
	return &MockPublisher{logger: logger}
}

func (p *MockPublisher) Publish(ctx context.Context, event Event) error {
	p.logger.Info("publishing event",
		slog.String("event_id", event.ID.String()),
		slog.String("event_type", event.EventType),
		slog.String("event_slug", event.EventSlug))
	return nil
}

// NATSPublisher publishes events to a NATS JetStream stream. One
// subject per event slug keeps delivery in-order per event.
type NATSPublisher struct {
	js     jetstream.JetStream
	nc     *nats.Conn
	logger *slog.Logger
}

// NewNATSPublisher connects to NATS and ensures the stage events
// stream exists.
func NewNATSPublisher(ctx context.Context, url string, logger *slog.Logger) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     events.StreamName,
		Subjects: []string{events.SubjectPrefix + ".>"},
		Storage:  jetstream.FileStorage,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream: %w", err)
	}

	return &NATSPublisher{js: js, nc: nc, logger: logger}, nil
}

func (p *NATSPublisher) Publish(ctx context.Context, event Event) error {
	subject := events.Subject(event.EventSlug)

	data, err := json.Marshal(envelopeFor(event))
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	// MsgId gives JetStream-side dedup when the relay retries after a
	// crash between publish and mark-sent.
	_, err = p.js.Publish(ctx, subject, data, jetstream.WithMsgID(event.ID.String()))
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}

	p.logger.Debug("published to NATS",
		slog.String("subject", subject),
		slog.String("event_id", event.ID.String()))
	return nil
}

func (p *NATSPublisher) Close() {
	if p.nc != nil {
		p.nc.Close()
	}
}

// KafkaPublisher publishes events to Apache Kafka. Keyed by event slug
// so a single partition preserves per-event ordering.
type KafkaPublisher struct {
	writer *kafka.Writer
	logger *slog.Logger
}

func NewKafkaPublisher(brokers []string, topic string, logger *slog.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
		},
		logger: logger,
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(envelopeFor(event))
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.EventSlug),
		Value: data,
	})
	if err != nil {
		return fmt.Errorf("failed to write to kafka: %w", err)
	}

	p.logger.Debug("published to Kafka",
		slog.String("topic", p.writer.Topic),
		slog.String("key", event.EventSlug),
		slog.Int("size", len(data)))
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func envelopeFor(event Event) events.Envelope {
	return events.Envelope{
		ID:        event.ID.String(),
		EventSlug: event.EventSlug,
		Type:      event.EventType,
		Timestamp: event.CreatedAt,
		Payload:   event.Payload,
	}
}
