package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/odai-awartani/wasselny/pkg/logger"
	kafkago "github.com/segmentio/kafka-go"
)

// Publisher emits lifecycle events. A nil *KafkaPublisher is a valid
// no-op publisher so event emission can be switched off by config.
type Publisher interface {
	Publish(ctx context.Context, topic string, key string, event interface{}) error
}

// KafkaPublisher writes JSON events to Kafka, keyed by ride id so all
// events for one ride land on the same partition in order.
type KafkaPublisher struct {
	writer *kafkago.Writer
	logger *logger.Logger
}

// NewKafkaPublisher returns a publisher connected to the given brokers
func NewKafkaPublisher(brokers []string, logger *logger.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafkago.Writer{
			Addr:         kafkago.TCP(brokers...),
			Balancer:     &kafkago.Hash{},
			BatchTimeout: 50 * time.Millisecond,
			RequiredAcks: kafkago.RequireOne,
		},
		logger: logger,
	}
}

// Publish sends one event. Nil receivers discard silently.
func (p *KafkaPublisher) Publish(ctx context.Context, topic string, key string, event interface{}) error {
	if p == nil {
		return nil
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafkago.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
	})
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}

	p.logger.Debug("Event published",
		logger.String("topic", topic),
		logger.String("key", key),
	)
	return nil
}

// Close flushes and closes the underlying writer
func (p *KafkaPublisher) Close() error {
	if p == nil {
		return nil
	}
	return p.writer.Close()
}
