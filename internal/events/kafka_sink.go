package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink writes events as JSON to a Kafka topic for the notification
// collaborator. Messages are keyed by investor id when the data is Keyed.
//
// The writer is asynchronous: Publish only enqueues, so a slow or
// unreachable broker never holds up the request that emitted the event.
// Delivery failures are logged from the completion callback.
type KafkaSink struct {
	writer messageWriter
	log    zerolog.Logger
}

// NewKafkaSink creates a sink writing to topic on brokers.
func NewKafkaSink(brokers []string, topic string, log zerolog.Logger) *KafkaSink {
	l := log.With().Str("component", "kafka_sink").Logger()
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		MaxAttempts:  3,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		Compression:  kafka.Snappy,
		Async:        true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				l.Error().Err(err).Int("messages", len(messages)).Msg("Failed to deliver events to kafka")
			}
		},
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			l.Error().Msgf(msg, args...)
		}),
	}
	return &KafkaSink{writer: writer, log: l}
}

// Publish writes one event.
func (s *KafkaSink) Publish(ctx context.Context, event EventWithData) error {
	value, err := json.Marshal(&event)
	if err != nil {
		return fmt.Errorf("failed to marshal event %s: %w", event.Type, err)
	}

	msg := kafka.Message{
		Value: value,
		Time:  event.Timestamp,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	}
	if keyed, ok := event.Data.(Keyed); ok {
		msg.Key = []byte(keyed.PartitionKey())
	}

	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write event %s to kafka: %w", event.Type, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
