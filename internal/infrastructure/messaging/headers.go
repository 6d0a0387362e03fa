package messaging

import (
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/propagation"
)

// HeaderEventType names the event carried by a record. Records without it are
// treated as OrderConfirmed.
const HeaderEventType = "event_type"

// Dead letter header keys
const (
	HeaderOriginalTopic     = "original_topic"
	HeaderOriginalPartition = "original_partition"
	HeaderOriginalOffset    = "original_offset"
	HeaderReason            = "reason"
	HeaderTimestamp         = "timestamp"
	HeaderAttempts          = "attempts"
)

// headerCarrier adapts Kafka record headers to propagation.TextMapCarrier so
// trace context travels with the record
type headerCarrier struct {
	headers *[]kafka.Header
}

var _ propagation.TextMapCarrier = headerCarrier{}

func (c headerCarrier) Get(key string) string {
	for _, h := range *c.headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c headerCarrier) Set(key, value string) {
	for i, h := range *c.headers {
		if h.Key == key {
			(*c.headers)[i].Value = []byte(value)
			return
		}
	}
	*c.headers = append(*c.headers, kafka.Header{Key: key, Value: []byte(value)})
}

func (c headerCarrier) Keys() []string {
	keys := make([]string, 0, len(*c.headers))
	for _, h := range *c.headers {
		keys = append(keys, h.Key)
	}
	return keys
}

// headerValue returns the value of the first header named key
func headerValue(headers []kafka.Header, key string) string {
	return headerCarrier{headers: &headers}.Get(key)
}
