package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"

	"jpusap-cobranzas/internal/eventing"
)

// MessageWriter is the subset of *kafka.Writer used by the sink.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Sink publishes envelopes to a Kafka topic keyed by member id, so all events of one
// member land on the same partition in order.
type Sink struct {
	writer MessageWriter
}

// NewSink builds a sink writing to topic on brokers.
func NewSink(brokers []string, topic string) (*Sink, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka sink: no brokers")
	}
	if topic == "" {
		return nil, errors.New("kafka sink: empty topic")
	}
	return NewSinkWithWriter(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
	})
}

// NewSinkWithWriter wraps an existing writer.
func NewSinkWithWriter(writer MessageWriter) (*Sink, error) {
	if writer == nil {
		return nil, errors.New("kafka sink: nil writer")
	}
	return &Sink{writer: writer}, nil
}

// Deliver writes envelopes as JSON messages.
func (s *Sink) Deliver(ctx context.Context, envelopes ...eventing.Envelope) error {
	if len(envelopes) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(envelopes))
	for _, env := range envelopes {
		data, err := json.Marshal(env)
		if err != nil {
			return err
		}
		key := env.MemberID
		if key == "" {
			key = env.TenantID
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(key),
			Value: data,
			Time:  env.OccurredAt,
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(env.EventType)},
				{Key: "correlation_id", Value: []byte(env.CorrelationID)},
			},
		})
	}
	return s.writer.WriteMessages(ctx, msgs...)
}

// Close flushes and closes the writer.
func (s *Sink) Close() error {
	if s == nil || s.writer == nil {
		return nil
	}
	return s.writer.Close()
}
