package logger

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type contextKey string

// Context keys. The ids are stored as plain values; loggers pick them up when
// a line is written through ContextLogger.
const (
	LoggerKey     contextKey = "logger"
	RequestIDKey  contextKey = "request_id"
	CustomerIDKey contextKey = "customer_id"
)

// WithContext stores the base logger of a request or event in ctx
func WithContext(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// FromContext returns the logger stored by WithContext, or a no-op logger
func FromContext(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(LoggerKey).(*zap.Logger); ok && l != nil {
		return l
	}
	return zap.NewNop()
}

// WithRequestID records the request id in ctx. The returned logger already
// carries it, for code that logs without the context.
func WithRequestID(ctx context.Context, logger *zap.Logger, requestID string) (context.Context, *zap.Logger) {
	return context.WithValue(ctx, RequestIDKey, requestID), logger.With(zap.String("request_id", requestID))
}

// WithCustomerID records the loyalty customer being served
func WithCustomerID(ctx context.Context, logger *zap.Logger, customerID string) (context.Context, *zap.Logger) {
	return context.WithValue(ctx, CustomerIDKey, customerID), logger.With(zap.String("customer_id", customerID))
}

func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDKey).(string)
	return id
}

func GetCustomerID(ctx context.Context) string {
	id, _ := ctx.Value(CustomerIDKey).(string)
	return id
}

// WithTraceContext adds trace_id and span_id of the active span, if any
func WithTraceContext(ctx context.Context, logger *zap.Logger) *zap.Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return logger
	}
	return logger.With(
		zap.String("trace_id", sc.TraceID().String()),
		zap.String("span_id", sc.SpanID().String()),
	)
}

// ContextLogger writes through a base logger and adds the trace, request and
// customer ids found in its context to every line.
//
//	logger.L(ctx).Info("points spent", zap.Float64("spend", 5))
type ContextLogger struct {
	ctx    context.Context
	logger *zap.Logger
}

// L uses the logger stored in ctx as base
func L(ctx context.Context) *ContextLogger {
	return &ContextLogger{ctx: ctx, logger: FromContext(ctx)}
}

// WithLogger uses an explicit base logger; nil discards output
func WithLogger(ctx context.Context, logger *zap.Logger) *ContextLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ContextLogger{ctx: ctx, logger: logger}
}

func (cl *ContextLogger) With(fields ...zap.Field) *ContextLogger {
	return &ContextLogger{ctx: cl.ctx, logger: cl.logger.With(fields...)}
}

// Zap returns the base logger with the context ids attached
func (cl *ContextLogger) Zap() *zap.Logger {
	l := WithTraceContext(cl.ctx, cl.logger)
	var ids []zap.Field
	if id := GetRequestID(cl.ctx); id != "" {
		ids = append(ids, zap.String("request_id", id))
	}
	if id := GetCustomerID(cl.ctx); id != "" {
		ids = append(ids, zap.String("customer_id", id))
	}
	if len(ids) == 0 {
		return l
	}
	return l.With(ids...)
}

func (cl *ContextLogger) Debug(msg string, fields ...zap.Field) { cl.Zap().Debug(msg, fields...) }
func (cl *ContextLogger) Info(msg string, fields ...zap.Field)  { cl.Zap().Info(msg, fields...) }
func (cl *ContextLogger) Warn(msg string, fields ...zap.Field)  { cl.Zap().Warn(msg, fields...) }
func (cl *ContextLogger) Error(msg string, fields ...zap.Field) { cl.Zap().Error(msg, fields...) }
