package kafkax

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
)

// NewWriter returns a writer that routes by message Topic, hashing keys so
// events for one aggregate stay ordered on a partition.
func NewWriter(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		BatchTimeout:           50 * time.Millisecond,
		RequiredAcks:           kafka.RequireAll,
	}
}

// NewMessage builds a message with the canonical event headers and the
// caller's trace context.
func NewMessage(ctx context.Context, topic, key, eventID string, value []byte) kafka.Message {
	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
		Headers: []kafka.Header{
			{Key: HeaderEventID, Value: []byte(eventID)},
			{Key: HeaderEventType, Value: []byte(topic)},
		},
	}
	msg.Headers = InjectTraceHeaders(ctx, msg.Headers)
	return msg
}
