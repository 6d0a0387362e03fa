package integration

import "github.com/segmentio/kafka-go"

// kafkaValue builds a raw record on the order topic, for payloads the
// publisher would refuse to produce
func kafkaValue(value string) kafka.Message {
	return kafka.Message{Topic: orderTopic, Key: []byte("raw"), Value: []byte(value)}
}
