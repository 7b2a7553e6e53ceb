// Package events publishes payment lifecycle notifications for downstream
// consumers. Publishing is best effort and never changes payment state.
package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

type Type string

const (
	PaymentCreated    Type = "payment.created"
	PaymentProcessing Type = "payment.processing"
	PaymentCompleted  Type = "payment.completed"
	PaymentFailed     Type = "payment.failed"
)

type Event struct {
	ID         string          `json:"id"`
	Type       Type            `json:"type"`
	PaymentID  string          `json:"paymentId"`
	Status     string          `json:"status"`
	OccurredAt time.Time       `json:"occurredAt"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Producer is the subset of *kafka.Writer used here.
type Producer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type KafkaPublisher struct {
	producer Producer
	topic    string
	log      zerolog.Logger
}

// NewKafkaWriter leaves Topic unset; each message names its own topic.
func NewKafkaWriter(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
	}
}

func NewKafkaPublisher(producer Producer, topic string, log zerolog.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		producer: producer,
		topic:    topic,
		log:      log.With().Str("component", "events.kafka").Logger(),
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Topic: p.topic,
		Key:   []byte(event.PaymentID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
			{Key: "event_id", Value: []byte(event.ID)},
		},
		Time: event.OccurredAt,
	}
	if err := p.producer.WriteMessages(ctx, msg); err != nil {
		p.log.Error().Err(err).Str("event_id", event.ID).Str("type", string(event.Type)).Msg("publish failed")
		return err
	}
	p.log.Debug().Str("event_id", event.ID).Str("type", string(event.Type)).Msg("event published")
	return nil
}

// LogPublisher writes events to the log only.
type LogPublisher struct {
	log zerolog.Logger
}

func NewLogPublisher(log zerolog.Logger) *LogPublisher {
	return &LogPublisher{log: log.With().Str("component", "events").Logger()}
}

func (p *LogPublisher) Publish(_ context.Context, event Event) error {
	p.log.Info().
		Str("event_id", event.ID).
		Str("type", string(event.Type)).
		Str("payment_id", event.PaymentID).
		Str("status", event.Status).
		Msg("payment event")
	return nil
}

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Types returns the recorded event types for paymentID in publish order.
func (r *Recorder) Types(paymentID string) []Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Type
	for _, e := range r.events {
		if e.PaymentID == paymentID {
			out = append(out, e.Type)
		}
	}
	return out
}
