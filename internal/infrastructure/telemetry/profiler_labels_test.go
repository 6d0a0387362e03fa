package telemetry

import (
	"context"
	"runtime/pprof"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeLabels(t *testing.T) {
	pairs := sanitizeLabels(map[string]string{
		"Operation":   "order_confirmed",
		"customer_id": "james",
		"topic":       "order-completed",
		"empty":       "",
		"Route Name":  strings.Repeat("x", 200),
	})

	assert.Equal(t, []string{
		"operation", "order_confirmed",
		"route_name", strings.Repeat("x", MaxLabelValueLength),
		"topic", "order-completed",
	}, pairs)
}

func TestSanitizeLabels_Empty(t *testing.T) {
	assert.Nil(t, sanitizeLabels(nil))
	assert.Empty(t, sanitizeLabels(map[string]string{"request_id": "r"}))
}

func TestWithProfilingLabels(t *testing.T) {
	var got string
	WithProfilingLabels(context.Background(),
		OperationLabels("order_confirmed", map[string]string{ProfilingLabelTopic: "order-completed"}),
		func(ctx context.Context) {
			got, _ = pprof.Label(ctx, ProfilingLabelOperation)
		})
	assert.Equal(t, "order_confirmed", got)

	called := false
	WithProfilingLabels(context.Background(), nil, func(context.Context) { called = true })
	assert.True(t, called)
}
