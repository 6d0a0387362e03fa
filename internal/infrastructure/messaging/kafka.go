// Package messaging connects the loyalty service to Kafka: the order event
// consumer, the dead letter publisher and the order event producer used by the
// simulator.
package messaging

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"github.com/loyalty/backend/internal/infrastructure/config"
	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl/plain"
)

// ErrTopicNotFound is returned by CheckTopic when the broker has no metadata for the topic
var ErrTopicNotFound = errors.New("kafka topic not found")

// NewDialer returns a dialer for the configured brokers.
// With credentials set it authenticates with SASL/PLAIN over TLS.
func NewDialer(cfg config.KafkaConfig) *kafka.Dialer {
	dialer := &kafka.Dialer{
		Timeout:   cfg.DialTimeout,
		DualStack: true,
	}
	if cfg.SASLEnabled() {
		dialer.SASLMechanism = plain.Mechanism{Username: cfg.Username, Password: cfg.Password}
		dialer.TLS = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return dialer
}

// newTransport is the writer-side equivalent of NewDialer
func newTransport(cfg config.KafkaConfig) *kafka.Transport {
	transport := &kafka.Transport{
		DialTimeout: cfg.DialTimeout,
	}
	if cfg.SASLEnabled() {
		transport.SASL = plain.Mechanism{Username: cfg.Username, Password: cfg.Password}
		transport.TLS = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return transport
}

// CheckTopic connects to the first reachable broker and verifies that the topic
// has at least one partition.
func CheckTopic(ctx context.Context, dialer *kafka.Dialer, brokers []string, topic string) error {
	if len(brokers) == 0 {
		return errors.New("no kafka brokers configured")
	}

	var errs []error
	for _, broker := range brokers {
		conn, err := dialer.DialContext(ctx, "tcp", broker)
		if err != nil {
			errs = append(errs, fmt.Errorf("dial %s: %w", broker, err))
			continue
		}
		partitions, err := conn.ReadPartitions(topic)
		_ = conn.Close()
		if err != nil {
			return fmt.Errorf("read partitions of %q from %s: %w", topic, broker, err)
		}
		if len(partitions) == 0 {
			return fmt.Errorf("%w: %s", ErrTopicNotFound, topic)
		}
		return nil
	}
	return fmt.Errorf("no kafka broker reachable: %w", errors.Join(errs...))
}

// NewReader creates a consumer group reader for the configured topic.
// Commits are flushed to the broker every commitInterval.
func NewReader(cfg config.KafkaConfig, dialer *kafka.Dialer, commitInterval time.Duration) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		GroupID:        cfg.GroupID,
		Topic:          cfg.Topic,
		Dialer:         dialer,
		MinBytes:       1,
		MaxBytes:       10e6, // 10MB
		MaxWait:        time.Second,
		StartOffset:    kafka.FirstOffset,
		CommitInterval: commitInterval,
	})
}

// NewWriter creates a synchronous writer. Each message names its own topic;
// messages with the same key land on the same partition.
func NewWriter(cfg config.KafkaConfig) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		Transport:              newTransport(cfg),
		AllowAutoTopicCreation: true,
		BatchTimeout:           10 * time.Millisecond,
	}
}
