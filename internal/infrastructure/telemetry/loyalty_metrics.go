package telemetry

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// ErrMeterNil is returned when a metrics set is built without a meter.
var ErrMeterNil = errors.New("telemetry: meter cannot be nil")

// LoyaltyMetrics records points movements and event processing outcomes.
// It satisfies the application's PointsMetrics interface.
type LoyaltyMetrics struct {
	pointsEarned     *FloatCounter
	pointsSpent      *FloatCounter
	duplicateOrders  *Counter
	spendRejected    *Counter
	eventsProcessed  *Counter
	eventsDeadLetter *Counter
	processDuration  *Histogram
}

// NewLoyaltyMetrics registers the loyalty instruments on meter.
func NewLoyaltyMetrics(meter metric.Meter) (*LoyaltyMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}

	m := &LoyaltyMetrics{}
	var err error
	if m.pointsEarned, err = NewFloatCounter(meter, "loyalty_points_earned_total",
		"Points credited from confirmed orders", "{points}"); err != nil {
		return nil, err
	}
	if m.pointsSpent, err = NewFloatCounter(meter, "loyalty_points_spent_total",
		"Points debited by spend requests", "{points}"); err != nil {
		return nil, err
	}
	if m.duplicateOrders, err = NewCounter(meter, "loyalty_duplicate_orders_total",
		"Orders already present in a customer's history", "{orders}"); err != nil {
		return nil, err
	}
	if m.spendRejected, err = NewCounter(meter, "loyalty_spend_rejected_total",
		"Spend requests rejected by validation", "{requests}"); err != nil {
		return nil, err
	}
	if m.eventsProcessed, err = NewCounter(meter, "loyalty_events_processed_total",
		"Order events consumed from the broker", "{events}"); err != nil {
		return nil, err
	}
	if m.eventsDeadLetter, err = NewCounter(meter, "loyalty_events_dead_lettered_total",
		"Order events forwarded to the dead letter topic", "{events}"); err != nil {
		return nil, err
	}
	if m.processDuration, err = NewHistogram(meter, HistogramOpts{
		Name:        "loyalty_event_processing_duration_seconds",
		Description: "Time spent handling one order event",
		Unit:        "s",
		Boundaries:  ProcessingDurationBuckets,
	}); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *LoyaltyMetrics) RecordPointsEarned(ctx context.Context, points float64) {
	m.pointsEarned.Add(ctx, points)
}

func (m *LoyaltyMetrics) RecordPointsSpent(ctx context.Context, points float64) {
	m.pointsSpent.Add(ctx, points)
}

func (m *LoyaltyMetrics) RecordDuplicateOrder(ctx context.Context, channel string) {
	m.duplicateOrders.Inc(ctx, AttrChannel.String(channel))
}

func (m *LoyaltyMetrics) RecordSpendRejected(ctx context.Context, reason string) {
	m.spendRejected.Inc(ctx, AttrReason.String(reason))
}

// RecordEventProcessed counts one consumed record with its outcome
// ("ok", "retried", "dead_lettered", "failed").
func (m *LoyaltyMetrics) RecordEventProcessed(ctx context.Context, topic, outcome string, took time.Duration) {
	m.eventsProcessed.Inc(ctx, AttrTopic.String(topic), AttrOutcome.String(outcome))
	m.processDuration.RecordDuration(ctx, took, AttrTopic.String(topic))
}

// RecordDeadLetter counts a record forwarded to the dead letter topic.
func (m *LoyaltyMetrics) RecordDeadLetter(ctx context.Context, topic, reason string) {
	m.eventsDeadLetter.Inc(ctx, AttrTopic.String(topic), AttrReason.String(reason))
}
