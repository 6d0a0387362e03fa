package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/loyalty/backend/internal/domain/loyalty"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

// MessageWriter is the subset of *kafka.Writer used by the publishers
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// DeadLetterPublisher copies records that could not be processed to a
// dead letter topic, annotated with where they came from and why.
type DeadLetterPublisher struct {
	writer MessageWriter
	topic  string
	now    func() time.Time
}

// NewDeadLetterPublisher creates a publisher writing to topic.
// The writer must not have a fixed Topic of its own.
func NewDeadLetterPublisher(writer MessageWriter, topic string) *DeadLetterPublisher {
	return &DeadLetterPublisher{writer: writer, topic: topic, now: time.Now}
}

// Topic returns the dead letter topic name
func (p *DeadLetterPublisher) Topic() string {
	return p.topic
}

// Publish writes a copy of msg with its key, value and headers preserved
func (p *DeadLetterPublisher) Publish(ctx context.Context, msg kafka.Message, reason string, attempts int) error {
	headers := make([]kafka.Header, 0, len(msg.Headers)+6)
	headers = append(headers, msg.Headers...)
	headers = append(headers,
		kafka.Header{Key: HeaderOriginalTopic, Value: []byte(msg.Topic)},
		kafka.Header{Key: HeaderOriginalPartition, Value: []byte(strconv.Itoa(msg.Partition))},
		kafka.Header{Key: HeaderOriginalOffset, Value: []byte(strconv.FormatInt(msg.Offset, 10))},
		kafka.Header{Key: HeaderReason, Value: []byte(reason)},
		kafka.Header{Key: HeaderTimestamp, Value: []byte(p.now().UTC().Format(time.RFC3339Nano))},
		kafka.Header{Key: HeaderAttempts, Value: []byte(strconv.Itoa(attempts))},
	)

	err := p.writer.WriteMessages(ctx, kafka.Message{
		Topic:   p.topic,
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: headers,
	})
	if err != nil {
		return fmt.Errorf("failed to publish to dead letter topic %s: %w", p.topic, err)
	}
	return nil
}

// Close closes the underlying writer
func (p *DeadLetterPublisher) Close() error {
	return p.writer.Close()
}

// OrderEventPublisher produces OrderConfirmed events keyed by order id
type OrderEventPublisher struct {
	writer MessageWriter
	topic  string
	logger *zap.Logger
}

// NewOrderEventPublisher creates a publisher writing to topic
func NewOrderEventPublisher(writer MessageWriter, topic string, logger *zap.Logger) *OrderEventPublisher {
	return &OrderEventPublisher{writer: writer, topic: topic, logger: logger}
}

// Publish encodes and writes one event. The current trace context is
// injected into the record headers.
func (p *OrderEventPublisher) Publish(ctx context.Context, event loyalty.OrderConfirmedEvent) error {
	if err := event.Validate(); err != nil {
		return err
	}
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode order event: %w", err)
	}

	headers := []kafka.Header{{Key: HeaderEventType, Value: []byte(event.EventType())}}
	otel.GetTextMapPropagator().Inject(ctx, headerCarrier{headers: &headers})

	msg := kafka.Message{
		Topic:   p.topic,
		Key:     []byte(event.OrderID),
		Value:   value,
		Headers: headers,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish order %s: %w", event.OrderID, err)
	}

	p.logger.Debug("Order event published",
		zap.String("topic", p.topic),
		zap.String("customer_id", event.CustomerID),
		zap.String("order_id", event.OrderID),
		zap.Float64("order_value", event.OrderValue),
	)
	return nil
}

// Close closes the underlying writer
func (p *OrderEventPublisher) Close() error {
	return p.writer.Close()
}
