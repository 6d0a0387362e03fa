package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName names the tracer of loyalty business spans
const TracerName = "loyalty-backend"

// Span attribute keys of the loyalty use cases and the order event consumer
var (
	AttrCustomerID    = attribute.Key("loyalty.customer_id")
	AttrOrderNumber   = attribute.Key("loyalty.order_number")
	AttrOrderValue    = attribute.Key("loyalty.order_value")
	AttrSpendAmount   = attribute.Key("loyalty.spend")
	AttrPoints        = attribute.Key("loyalty.points")
	AttrAttempt       = attribute.Key("loyalty.attempt")
	AttrAccountCached = attribute.Key("loyalty.account_cached")
	AttrPartition     = attribute.Key("messaging.kafka.partition")
	AttrOffset        = attribute.Key("messaging.kafka.offset")
)

// StartSpan starts a span of the given kind on the global tracer provider.
// The caller ends it.
func StartSpan(ctx context.Context, name string, kind trace.SpanKind, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, name,
		trace.WithSpanKind(kind),
		trace.WithAttributes(attrs...),
	)
}

// StartUseCaseSpan starts the internal span of a loyalty use case, named
// "loyalty.<useCase>"
//
//	ctx, span := telemetry.StartUseCaseSpan(ctx, "spend_points", telemetry.AttrCustomerID.String(id))
//	defer span.End()
func StartUseCaseSpan(ctx context.Context, useCase string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return StartSpan(ctx, "loyalty."+useCase, trace.SpanKindInternal, attrs...)
}

// RecordError marks span as failed with err. A nil err is ignored.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
