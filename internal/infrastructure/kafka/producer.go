package kafka

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer writes to any topic. LeastBytes spreads keys across partitions,
// so consumers must not rely on per-key ordering.
type Producer struct {
	writer messageWriter
}

func NewProducer(brokers []string) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.LeastBytes{},
		BatchTimeout:           10 * time.Millisecond,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Producer{writer: writer}
}

// Publish writes msg to msg.Topic, adding the caller's trace context to its headers.
func (p *Producer) Publish(ctx context.Context, msg Message) error {
	headers := make(map[string]string, len(msg.Headers)+2)
	for k, v := range msg.Headers {
		headers[k] = v
	}
	InjectTraceContext(ctx, headers)

	return p.writer.WriteMessages(ctx, kafka.Message{
		Topic:   msg.Topic,
		Key:     []byte(msg.Key),
		Value:   msg.Value,
		Headers: toKafkaHeaders(headers),
		Time:    time.Now(),
	})
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
