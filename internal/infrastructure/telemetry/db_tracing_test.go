package telemetry_test

import (
	"context"
	"testing"

	"github.com/loyalty/backend/internal/infrastructure/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type tracedRow struct {
	ID         uint `gorm:"primaryKey"`
	CustomerID string
}

func openSQLite(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: gormlogger.Discard})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&tracedRow{}))
	return db
}

func installRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})
	return recorder
}

func hasAttr(span sdktrace.ReadOnlySpan, key string) bool {
	for _, kv := range span.Attributes() {
		if kv.Key == attribute.Key(key) {
			return true
		}
	}
	return false
}

func TestDBTracingPlugin_DisabledRegistersNothing(t *testing.T) {
	recorder := installRecorder(t)
	db := openSQLite(t)

	plugin := telemetry.NewDBTracingPlugin(telemetry.DBTracingConfig{}, zaptest.NewLogger(t))
	require.NoError(t, plugin.Register(db))

	require.NoError(t, db.Create(&tracedRow{CustomerID: "james"}).Error)
	assert.Empty(t, recorder.Ended())
}

func TestDBTracingPlugin_CreatesSpans(t *testing.T) {
	recorder := installRecorder(t)
	db := openSQLite(t)

	plugin := telemetry.NewDBTracingPlugin(telemetry.DBTracingConfig{
		Enabled: true,
		DBName:  "loyalty",
	}, zaptest.NewLogger(t))
	require.NoError(t, plugin.Register(db))

	ctx, parent := otel.Tracer("test").Start(context.Background(), "parent")
	require.NoError(t, db.WithContext(ctx).Create(&tracedRow{CustomerID: "james"}).Error)
	var rows []tracedRow
	require.NoError(t, db.WithContext(ctx).Find(&rows).Error)
	parent.End()

	spans := recorder.Ended()
	require.GreaterOrEqual(t, len(spans), 3)

	var dbSpans int
	for _, s := range spans {
		if s.Name() == "parent" {
			continue
		}
		dbSpans++
		assert.Equal(t, parent.SpanContext().TraceID(), s.SpanContext().TraceID())
		assert.True(t, hasAttr(s, "db.statement") || hasAttr(s, "db.query.text"), s.Name())
	}
	assert.GreaterOrEqual(t, dbSpans, 2)
}
