package telemetry

import (
	"context"
	"errors"
	"time"

	"github.com/loyalty/backend/internal/infrastructure/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Telemetry bundles the providers a binary starts at boot.
type Telemetry struct {
	Tracer   *TracerProvider
	Meter    *MeterProvider
	Logs     *LoggerProvider
	Profiler *Profiler

	serviceName     string
	shutdownTimeout time.Duration
}

// Setup starts every enabled provider. Providers that already started are
// shut down again when a later one fails.
func Setup(ctx context.Context, cfg config.TelemetryConfig, prof config.ProfilingConfig, logger *zap.Logger) (*Telemetry, error) {
	t := &Telemetry{serviceName: cfg.ServiceName, shutdownTimeout: cfg.ShutdownTimeout}
	if t.shutdownTimeout <= 0 {
		t.shutdownTimeout = 2 * time.Second
	}
	collector := Collector{
		Endpoint:    cfg.CollectorEndpoint,
		Insecure:    cfg.Insecure,
		ServiceName: cfg.ServiceName,
	}

	var err error
	if t.Logs, err = NewLoggerProvider(ctx, LogsConfig{Collector: collector, Enabled: cfg.LogsEnabled}, logger); err != nil {
		return nil, err
	}

	if t.Tracer, err = NewTracerProvider(ctx, Config{
		Collector:     collector,
		Enabled:       cfg.Enabled,
		SamplingRatio: cfg.SamplingRatio,
	}, logger); err != nil {
		_ = t.Shutdown(context.Background())
		return nil, err
	}

	if t.Meter, err = NewMeterProvider(ctx, MetricsConfig{
		Collector:      collector,
		Enabled:        cfg.MetricsEnabled,
		ExportInterval: cfg.MetricsExportInterval,
	}, logger); err != nil {
		_ = t.Shutdown(context.Background())
		return nil, err
	}

	if t.Profiler, err = NewProfiler(ProfilerConfig{
		Enabled:           prof.Enabled,
		ServerAddress:     prof.ServerAddress,
		ApplicationName:   prof.ApplicationName,
		BasicAuthUser:     prof.BasicAuthUser,
		BasicAuthPassword: prof.BasicAuthPassword,
	}, logger); err != nil {
		_ = t.Shutdown(context.Background())
		return nil, err
	}
	if t.Profiler.IsEnabled() {
		t.Tracer.EnableSpanProfiles()
	}

	return t, nil
}

// LogCore returns the zap core that forwards entries to the OTLP log
// exporter, or a no-op core when log export is disabled.
func (t *Telemetry) LogCore(level zapcore.Level) zapcore.Core {
	return NewZapOTELCore(ZapBridgeConfig{
		ServiceName:    t.serviceName,
		LoggerProvider: t.Logs,
		Level:          level,
	})
}

// Shutdown flushes every provider within the configured shutdown timeout.
// Export failures are returned joined; nothing here blocks past the timeout
// except the profiler, whose SDK has no deadline.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, t.shutdownTimeout)
	defer cancel()

	var errs []error
	if t.Profiler != nil {
		errs = append(errs, t.Profiler.Stop())
	}
	if t.Tracer != nil {
		errs = append(errs, t.Tracer.Shutdown(ctx))
	}
	if t.Meter != nil {
		errs = append(errs, t.Meter.Shutdown(ctx))
	}
	if t.Logs != nil {
		errs = append(errs, t.Logs.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
