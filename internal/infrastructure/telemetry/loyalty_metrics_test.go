package telemetry_test

import (
	"context"
	"testing"
	"time"

	"github.com/loyalty/backend/internal/infrastructure/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := map[string]metricdata.Metrics{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func newTestMeter(t *testing.T) (*sdkmetric.MeterProvider, *sdkmetric.ManualReader) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	return mp, reader
}

func TestNewLoyaltyMetrics_NilMeter(t *testing.T) {
	_, err := telemetry.NewLoyaltyMetrics(nil)
	assert.ErrorIs(t, err, telemetry.ErrMeterNil)
}

func TestLoyaltyMetrics_Records(t *testing.T) {
	mp, reader := newTestMeter(t)
	m, err := telemetry.NewLoyaltyMetrics(mp.Meter("loyalty"))
	require.NoError(t, err)
	ctx := context.Background()

	m.RecordPointsEarned(ctx, 50)
	m.RecordPointsEarned(ctx, 2.5)
	m.RecordPointsEarned(ctx, -1)
	m.RecordPointsSpent(ctx, 5)
	m.RecordDuplicateOrder(ctx, "earn")
	m.RecordDuplicateOrder(ctx, "spend")
	m.RecordSpendRejected(ctx, "insufficient_points")
	m.RecordEventProcessed(ctx, "order-completed", "ok", 20*time.Millisecond)
	m.RecordDeadLetter(ctx, "order-completed", "decode")

	metrics := collect(t, reader)

	earned := metrics["loyalty_points_earned_total"].Data.(metricdata.Sum[float64])
	require.Len(t, earned.DataPoints, 1)
	assert.InDelta(t, 52.5, earned.DataPoints[0].Value, 1e-9)

	spent := metrics["loyalty_points_spent_total"].Data.(metricdata.Sum[float64])
	assert.InDelta(t, 5, spent.DataPoints[0].Value, 1e-9)

	dups := metrics["loyalty_duplicate_orders_total"].Data.(metricdata.Sum[int64])
	assert.Len(t, dups.DataPoints, 2)

	rejected := metrics["loyalty_spend_rejected_total"].Data.(metricdata.Sum[int64])
	require.Len(t, rejected.DataPoints, 1)
	reason, ok := rejected.DataPoints[0].Attributes.Value(attribute.Key("reason"))
	require.True(t, ok)
	assert.Equal(t, "insufficient_points", reason.AsString())

	hist := metrics["loyalty_event_processing_duration_seconds"].Data.(metricdata.Histogram[float64])
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, uint64(1), hist.DataPoints[0].Count)

	dlq := metrics["loyalty_events_dead_lettered_total"].Data.(metricdata.Sum[int64])
	assert.Equal(t, int64(1), dlq.DataPoints[0].Value)
}

func TestRegisterDBPoolMetrics(t *testing.T) {
	mp, reader := newTestMeter(t)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(7)
	t.Cleanup(func() { _ = sqlDB.Close() })

	reg, err := telemetry.RegisterDBPoolMetrics(mp.Meter("db"), sqlDB)
	require.NoError(t, err)
	defer func() { _ = reg.Unregister() }()

	metrics := collect(t, reader)

	maxConns := metrics["db_pool_connections_max"].Data.(metricdata.Gauge[int64])
	require.Len(t, maxConns.DataPoints, 1)
	assert.Equal(t, int64(7), maxConns.DataPoints[0].Value)

	conns := metrics["db_pool_connections"].Data.(metricdata.Gauge[int64])
	assert.Len(t, conns.DataPoints, 2)
}

func TestRegisterDBPoolMetrics_NilMeter(t *testing.T) {
	_, err := telemetry.RegisterDBPoolMetrics(nil, nil)
	assert.ErrorIs(t, err, telemetry.ErrMeterNil)
}
