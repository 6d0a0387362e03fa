package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/loyalty/backend/internal/domain/loyalty"
	"github.com/loyalty/backend/internal/infrastructure/telemetry"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Processing outcomes reported to metrics
const (
	OutcomeProcessed    = "processed"
	OutcomeRetried      = "retried"
	OutcomeDeadLettered = "dead_lettered"
	OutcomeSkipped      = "skipped"
	OutcomeAbandoned    = "abandoned"
	OutcomeIgnored      = "ignored"
)

// Dead letter reasons
const (
	ReasonDecodeError      = "decode_error"
	ReasonInvalidEvent     = "invalid_event"
	ReasonRetriesExhausted = "retries_exhausted"
)

// MessageReader is the subset of *kafka.Reader used by the consumer
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// OrderEventHandler applies one decoded event
type OrderEventHandler interface {
	Handle(ctx context.Context, event loyalty.OrderConfirmedEvent) error
}

// eventTypeFilter is implemented by handlers that only accept some event types
type eventTypeFilter interface {
	EventTypes() []string
}

// ConsumerMetrics receives per-record processing results
type ConsumerMetrics interface {
	RecordEventProcessed(ctx context.Context, topic, outcome string, took time.Duration)
	RecordDeadLetter(ctx context.Context, topic, reason string)
}

// ConsumerConfig controls retries and shutdown of the consumer
type ConsumerConfig struct {
	Topic               string
	MaxDeliveryAttempts int
	RetryBackoff        time.Duration
	MaxRetryBackoff     time.Duration
	ShutdownGrace       time.Duration
}

// ConsumerOption configures an OrderConfirmedConsumer
type ConsumerOption func(*OrderConfirmedConsumer)

// WithDeadLetter enables dead lettering through p
func WithDeadLetter(p *DeadLetterPublisher) ConsumerOption {
	return func(c *OrderConfirmedConsumer) {
		c.deadLetter = p
	}
}

// WithConsumerMetrics sets the metrics sink
func WithConsumerMetrics(m ConsumerMetrics) ConsumerOption {
	return func(c *OrderConfirmedConsumer) {
		if m != nil {
			c.metrics = m
		}
	}
}

// OrderConfirmedConsumer reads OrderConfirmed records one at a time, applies
// them through the handler and commits each record once it has been applied
// or dead-lettered.
type OrderConfirmedConsumer struct {
	reader     MessageReader
	handler    OrderEventHandler
	deadLetter *DeadLetterPublisher
	metrics    ConsumerMetrics
	cfg        ConsumerConfig
	logger     *zap.Logger
	sleep      func(ctx context.Context, d time.Duration) bool
	accepts    map[string]bool
}

// NewOrderConfirmedConsumer creates a consumer. Without WithDeadLetter a
// failing record is retried until it succeeds or the consumer stops.
func NewOrderConfirmedConsumer(
	reader MessageReader,
	handler OrderEventHandler,
	cfg ConsumerConfig,
	logger *zap.Logger,
	opts ...ConsumerOption,
) *OrderConfirmedConsumer {
	if cfg.MaxDeliveryAttempts < 1 {
		cfg.MaxDeliveryAttempts = 1
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 500 * time.Millisecond
	}
	if cfg.MaxRetryBackoff < cfg.RetryBackoff {
		cfg.MaxRetryBackoff = cfg.RetryBackoff
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = 5 * time.Second
	}
	c := &OrderConfirmedConsumer{
		reader:  reader,
		handler: handler,
		metrics: noopConsumerMetrics{},
		cfg:     cfg,
		logger:  logger.With(zap.String("topic", cfg.Topic)),
		sleep:   sleepContext,
	}
	if f, ok := handler.(eventTypeFilter); ok {
		c.accepts = make(map[string]bool)
		for _, t := range f.EventTypes() {
			c.accepts[t] = true
		}
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run consumes until ctx is cancelled or the reader is closed.
// The record in flight when ctx is cancelled gets ShutdownGrace to finish.
func (c *OrderConfirmedConsumer) Run(ctx context.Context) error {
	c.logger.Info("Order consumer started",
		zap.Int("max_delivery_attempts", c.cfg.MaxDeliveryAttempts),
		zap.Bool("dead_letter", c.deadLetter != nil),
	)

	fetchBackoff := c.newBackoff()
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				c.logger.Info("Order consumer stopped")
				return nil
			}
			wait := fetchBackoff.NextBackOff()
			c.logger.Warn("Failed to fetch message", zap.Error(err), zap.Duration("retry_in", wait))
			if !c.sleep(ctx, wait) {
				c.logger.Info("Order consumer stopped")
				return nil
			}
			continue
		}
		fetchBackoff.Reset()

		telemetry.WithProfilingLabels(ctx,
			telemetry.OperationLabels("consume_order_confirmed", map[string]string{
				telemetry.ProfilingLabelTopic: msg.Topic,
			}),
			func(ctx context.Context) {
				c.process(ctx, msg)
			})
	}
}

// process handles one record end to end
func (c *OrderConfirmedConsumer) process(ctx context.Context, msg kafka.Message) {
	start := time.Now()

	workCtx, cancel := withGrace(ctx, c.cfg.ShutdownGrace)
	defer cancel()

	workCtx = otel.GetTextMapPropagator().Extract(workCtx, headerCarrier{headers: &msg.Headers})
	workCtx, span := telemetry.StartSpan(workCtx, "loyalty.consume "+msg.Topic, trace.SpanKindConsumer,
		telemetry.AttrTopic.String(msg.Topic),
		telemetry.AttrPartition.Int(msg.Partition),
		telemetry.AttrOffset.Int64(msg.Offset),
	)
	defer span.End()

	log := c.logger.With(
		zap.Int("partition", msg.Partition),
		zap.Int64("offset", msg.Offset),
		zap.String("key", string(msg.Key)),
	)

	if eventType := headerValue(msg.Headers, HeaderEventType); eventType != "" && c.accepts != nil && !c.accepts[eventType] {
		log.Debug("Ignoring record of another event type", zap.String("event_type", eventType))
		c.commit(workCtx, log, msg)
		c.metrics.RecordEventProcessed(workCtx, msg.Topic, OutcomeIgnored, time.Since(start))
		return
	}

	event, err := decodeOrderConfirmed(msg.Value)
	if err != nil {
		telemetry.RecordError(span, err)
		log.Error("Failure parsing payload to OrderConfirmed event", zap.Error(err))
		c.reject(workCtx, log, msg, ReasonDecodeError, err, 1, start)
		return
	}
	if err := event.Validate(); err != nil {
		telemetry.RecordError(span, err)
		log.Error("Rejecting invalid OrderConfirmed event", zap.Error(err))
		c.reject(workCtx, log, msg, ReasonInvalidEvent, err, 1, start)
		return
	}
	span.SetAttributes(
		telemetry.AttrCustomerID.String(event.CustomerID),
		telemetry.AttrOrderNumber.String(event.OrderID),
	)

	retry := c.newBackoff()
	for attempt := 1; ; attempt++ {
		err := c.handler.Handle(workCtx, event)
		if err == nil {
			c.commit(workCtx, log, msg)
			c.metrics.RecordEventProcessed(workCtx, msg.Topic, OutcomeProcessed, time.Since(start))
			return
		}
		telemetry.RecordError(span, err)

		if errors.Is(err, loyalty.ErrInvalidValues) {
			log.Error("Failure processing OrderConfirmed event", zap.Error(err))
			c.reject(workCtx, log, msg, ReasonInvalidEvent, err, attempt, start)
			return
		}

		if c.deadLetter != nil && attempt >= c.cfg.MaxDeliveryAttempts {
			log.Error("Giving up on OrderConfirmed event",
				zap.String("order_id", event.OrderID),
				zap.Int("attempts", attempt),
				zap.Error(err),
			)
			c.reject(workCtx, log, msg, ReasonRetriesExhausted, err, attempt, start)
			return
		}

		wait := retry.NextBackOff()
		log.Warn("Failure processing OrderConfirmed event, retrying",
			zap.String("order_id", event.OrderID),
			zap.Int("attempt", attempt),
			zap.Duration("retry_in", wait),
			zap.Error(err),
		)
		c.metrics.RecordEventProcessed(workCtx, msg.Topic, OutcomeRetried, time.Since(start))

		// shutdown leaves the record uncommitted for the next consumer
		if !c.sleep(ctx, wait) {
			log.Warn("Consumer stopping, record left uncommitted", zap.String("order_id", event.OrderID))
			c.metrics.RecordEventProcessed(workCtx, msg.Topic, OutcomeAbandoned, time.Since(start))
			return
		}
	}
}

// reject dead-letters and commits msg, or skips it when dead lettering is off
func (c *OrderConfirmedConsumer) reject(ctx context.Context, log *zap.Logger, msg kafka.Message, reason string, cause error, attempts int, start time.Time) {
	if c.deadLetter == nil {
		c.metrics.RecordEventProcessed(ctx, msg.Topic, OutcomeSkipped, time.Since(start))
		return
	}

	detail := fmt.Sprintf("%s: %v", reason, cause)
	if err := c.deadLetter.Publish(ctx, msg, detail, attempts); err != nil {
		// not committed, so the record is delivered again after a restart
		log.Error("Failed to dead-letter record", zap.String("reason", reason), zap.Error(err))
		c.metrics.RecordEventProcessed(ctx, msg.Topic, OutcomeAbandoned, time.Since(start))
		return
	}
	log.Warn("Record dead-lettered",
		zap.String("dead_letter_topic", c.deadLetter.Topic()),
		zap.String("reason", reason),
	)
	c.metrics.RecordDeadLetter(ctx, msg.Topic, reason)
	c.commit(ctx, log, msg)
	c.metrics.RecordEventProcessed(ctx, msg.Topic, OutcomeDeadLettered, time.Since(start))
}

func (c *OrderConfirmedConsumer) commit(ctx context.Context, log *zap.Logger, msg kafka.Message) {
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		log.Error("Failed to commit offset", zap.Error(err))
	}
}

func (c *OrderConfirmedConsumer) newBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.RetryBackoff
	b.MaxInterval = c.cfg.MaxRetryBackoff
	b.Multiplier = 2
	b.RandomizationFactor = 0.2
	b.Reset()
	return b
}

// decodeOrderConfirmed parses the JSON record value
func decodeOrderConfirmed(value []byte) (loyalty.OrderConfirmedEvent, error) {
	var event loyalty.OrderConfirmedEvent
	if len(value) == 0 {
		return event, errors.New("empty payload")
	}
	if err := json.Unmarshal(value, &event); err != nil {
		return event, fmt.Errorf("invalid OrderConfirmed payload: %w", err)
	}
	return event, nil
}

// withGrace returns a context that outlives parent by grace
func withGrace(parent context.Context, grace time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	stop := context.AfterFunc(parent, func() {
		timer := time.NewTimer(grace)
		defer timer.Stop()
		select {
		case <-timer.C:
			cancel()
		case <-ctx.Done():
		}
	})
	return ctx, func() {
		stop()
		cancel()
	}
}

// sleepContext waits for d and reports false if ctx ended first
func sleepContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

type noopConsumerMetrics struct{}

func (noopConsumerMetrics) RecordEventProcessed(context.Context, string, string, time.Duration) {}
func (noopConsumerMetrics) RecordDeadLetter(context.Context, string, string)                    {}
