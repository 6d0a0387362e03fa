package telemetry_test

import (
	"context"
	"testing"
	"time"

	"github.com/loyalty/backend/internal/infrastructure/config"
	"github.com/loyalty/backend/internal/infrastructure/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
)

func TestProviders_Disabled(t *testing.T) {
	ctx := context.Background()
	logger := zaptest.NewLogger(t)
	collector := telemetry.Collector{ServiceName: "loyalty-test"}

	tp, err := telemetry.NewTracerProvider(ctx, telemetry.Config{Collector: collector}, logger)
	require.NoError(t, err)
	assert.False(t, tp.IsEnabled())
	assert.NotNil(t, tp.Tracer("x"))
	tp.EnableSpanProfiles()
	assert.NoError(t, tp.ForceFlush(ctx))
	assert.NoError(t, tp.Shutdown(ctx))

	mp, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{Collector: collector}, logger)
	require.NoError(t, err)
	assert.False(t, mp.IsEnabled())
	assert.NotNil(t, mp.Meter("x"))
	assert.NoError(t, mp.ForceFlush(ctx))
	assert.NoError(t, mp.Shutdown(ctx))

	lp, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{Collector: collector}, logger)
	require.NoError(t, err)
	assert.False(t, lp.IsEnabled())
	assert.NoError(t, lp.ForceFlush(ctx))
	assert.NoError(t, lp.Shutdown(ctx))
}

func TestNewZapOTELCore_DisabledIsNop(t *testing.T) {
	core := telemetry.NewZapOTELCore(telemetry.ZapBridgeConfig{ServiceName: "loyalty-test"})
	assert.False(t, core.Enabled(zapcore.ErrorLevel))
}

func TestSetup_AllDisabled(t *testing.T) {
	tel, err := telemetry.Setup(context.Background(),
		config.TelemetryConfig{ServiceName: "loyalty-test"},
		config.ProfilingConfig{},
		zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.False(t, tel.Tracer.IsEnabled())
	assert.False(t, tel.Meter.IsEnabled())
	assert.False(t, tel.Logs.IsEnabled())
	assert.False(t, tel.Profiler.IsEnabled())
	assert.False(t, tel.LogCore(zapcore.InfoLevel).Enabled(zapcore.ErrorLevel))
	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestSetup_ProfilerMisconfigured(t *testing.T) {
	_, err := telemetry.Setup(context.Background(),
		config.TelemetryConfig{ServiceName: "loyalty-test"},
		config.ProfilingConfig{Enabled: true, ApplicationName: "loyalty"},
		zaptest.NewLogger(t))
	assert.ErrorContains(t, err, "server address")
}

func TestSetup_Enabled(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping collector-backed test in short mode")
	}

	// Exporters dial lazily, so no collector has to be listening.
	tel, err := telemetry.Setup(context.Background(), config.TelemetryConfig{
		Enabled:               true,
		CollectorEndpoint:     "localhost:14317",
		SamplingRatio:         1,
		ServiceName:           "loyalty-test",
		Insecure:              true,
		MetricsEnabled:        true,
		MetricsExportInterval: time.Hour,
		LogsEnabled:           true,
		ShutdownTimeout:       500 * time.Millisecond,
	}, config.ProfilingConfig{}, zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.True(t, tel.Tracer.IsEnabled())
	assert.True(t, tel.Meter.IsEnabled())
	assert.True(t, tel.Logs.IsEnabled())

	core := tel.LogCore(zapcore.WarnLevel)
	assert.False(t, core.Enabled(zapcore.InfoLevel))
	assert.True(t, core.Enabled(zapcore.ErrorLevel))

	_ = tel.Shutdown(context.Background())
}

func TestProfiler_Disabled(t *testing.T) {
	p, err := telemetry.NewProfiler(telemetry.ProfilerConfig{}, zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.False(t, p.IsEnabled())
	assert.NoError(t, p.Stop())
	assert.NoError(t, p.Stop())
}

func TestProfiler_RequiresApplicationName(t *testing.T) {
	_, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:       true,
		ServerAddress: "http://pyroscope:4040",
	}, zaptest.NewLogger(t))
	assert.ErrorContains(t, err, "application name")
}
