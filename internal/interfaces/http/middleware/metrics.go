package middleware

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/loyalty/backend/internal/infrastructure/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// HTTPMetricsConfig holds configuration for HTTP metrics middleware.
type HTTPMetricsConfig struct {
	MeterProvider *telemetry.MeterProvider
	Enabled       bool
}

// httpInstruments are the server-side HTTP instruments
type httpInstruments struct {
	requests     *telemetry.Counter
	latency      *telemetry.Histogram
	requestBody  *telemetry.Histogram
	responseBody *telemetry.Histogram
	inFlight     metric.Int64UpDownCounter
}

// bodySizeBuckets cover the small JSON bodies of the loyalty API up to 1MB
var bodySizeBuckets = []float64{64, 256, 1024, 4096, 16384, 65536, 262144, 1048576}

func newHTTPInstruments(meter metric.Meter) (*httpInstruments, error) {
	in := &httpInstruments{}
	var err error
	if in.requests, err = telemetry.NewCounter(meter, "http_server_request_total",
		"HTTP requests served, by route, status and API error code", "{request}"); err != nil {
		return nil, err
	}
	if in.latency, err = telemetry.NewHistogram(meter, telemetry.HistogramOpts{
		Name:        "http_server_request_duration_seconds",
		Description: "Time to serve an HTTP request",
		Unit:        "s",
		Boundaries:  telemetry.HTTPDurationBuckets,
	}); err != nil {
		return nil, err
	}
	if in.requestBody, err = telemetry.NewHistogram(meter, telemetry.HistogramOpts{
		Name:        "http_server_request_size_bytes",
		Description: "Declared size of request bodies",
		Unit:        "By",
		Boundaries:  bodySizeBuckets,
	}); err != nil {
		return nil, err
	}
	if in.responseBody, err = telemetry.NewHistogram(meter, telemetry.HistogramOpts{
		Name:        "http_server_response_size_bytes",
		Description: "Size of response bodies written",
		Unit:        "By",
		Boundaries:  bodySizeBuckets,
	}); err != nil {
		return nil, err
	}
	if in.inFlight, err = meter.Int64UpDownCounter("http_server_active_requests",
		metric.WithDescription("Requests currently being served"),
		metric.WithUnit("{request}")); err != nil {
		return nil, err
	}
	return in, nil
}

// HTTPMetrics counts and times requests by matched route. Rejections carry the
// API error code (ERR_INSUFFICIENT_POINTS, ERR_ALREADY_EXISTS, ...) so refused
// spends can be told apart from failures.
func HTTPMetrics(cfg HTTPMetricsConfig) gin.HandlerFunc {
	if !cfg.Enabled || cfg.MeterProvider == nil || !cfg.MeterProvider.IsEnabled() {
		return passThrough
	}
	return HTTPMetricsWithMeter(cfg.MeterProvider.Meter("http.server"), true)
}

// HTTPMetricsWithMeter is HTTPMetrics on an explicit meter
func HTTPMetricsWithMeter(meter metric.Meter, enabled bool) gin.HandlerFunc {
	if !enabled {
		return passThrough
	}
	in, err := newHTTPInstruments(meter)
	if err != nil {
		return passThrough
	}

	return func(c *gin.Context) {
		ctx := c.Request.Context()
		start := time.Now()

		in.inFlight.Add(ctx, 1)
		defer in.inFlight.Add(ctx, -1)

		c.Next()

		in.observe(ctx, c, time.Since(start))
	}
}

func (in *httpInstruments) observe(ctx context.Context, c *gin.Context, elapsed time.Duration) {
	route := c.FullPath()
	if route == "" {
		route = "unknown"
	}
	status := c.Writer.Status()
	attrs := []attribute.KeyValue{
		telemetry.AttrHTTPMethod.String(c.Request.Method),
		telemetry.AttrHTTPRoute.String(route),
	}

	in.latency.RecordDuration(ctx, elapsed, attrs...)
	if n := c.Request.ContentLength; n > 0 {
		in.requestBody.Record(ctx, float64(n), attrs...)
	}
	if n := c.Writer.Size(); n > 0 {
		in.responseBody.Record(ctx, float64(n), attrs...)
	}

	attrs = append(attrs,
		telemetry.AttrHTTPStatusCode.Int(status),
		attribute.String("http.status_class", HTTPMetricsStatusGroup(status)),
	)
	if code := GetErrorCode(c); code != "" {
		attrs = append(attrs, telemetry.AttrErrorCode.String(code))
	}
	in.requests.Inc(ctx, attrs...)
}

// HTTPMetricsStatusGroup returns the class of a status code: "2xx" for 204,
// "other" below 200.
func HTTPMetricsStatusGroup(statusCode int) string {
	if statusCode < 200 || statusCode > 599 {
		return "other"
	}
	return strconv.Itoa(statusCode/100) + "xx"
}

func passThrough(c *gin.Context) {
	c.Next()
}
