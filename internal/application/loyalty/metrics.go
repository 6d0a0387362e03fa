package loyalty

import "context"

// PointsMetrics receives business counters from the loyalty use cases.
// The telemetry package provides the OpenTelemetry implementation.
type PointsMetrics interface {
	RecordPointsEarned(ctx context.Context, points float64)
	RecordPointsSpent(ctx context.Context, points float64)
	RecordDuplicateOrder(ctx context.Context, channel string)
	RecordSpendRejected(ctx context.Context, reason string)
}

// Channels reported with RecordDuplicateOrder
const (
	ChannelEarn  = "earn"
	ChannelSpend = "spend"
)

type noopMetrics struct{}

func (noopMetrics) RecordPointsEarned(context.Context, float64)  {}
func (noopMetrics) RecordPointsSpent(context.Context, float64)   {}
func (noopMetrics) RecordDuplicateOrder(context.Context, string) {}
func (noopMetrics) RecordSpendRejected(context.Context, string)  {}
