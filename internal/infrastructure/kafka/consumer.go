package kafka

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// MessageHandler returns nil once msg is fully dealt with. Any error keeps
// the offset uncommitted and the same message is handed back after a pause.
type MessageHandler func(ctx context.Context, msg Message) error

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	reader     messageReader
	logger     *zap.Logger
	retryDelay time.Duration
}

// NewConsumer joins groupID on every topic in topics.
func NewConsumer(brokers, topics []string, groupID string, logger *zap.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		GroupID:     groupID,
		GroupTopics: topics,
		MinBytes:    1,
		MaxBytes:    10e6, // 10MB
		StartOffset: kafka.FirstOffset,
	})
	return newConsumer(reader, logger)
}

func newConsumer(reader messageReader, logger *zap.Logger) *Consumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consumer{
		reader:     reader,
		logger:     logger,
		retryDelay: time.Second,
	}
}

// Consume runs until ctx is cancelled. Offsets are committed only after the
// handler succeeds.
func (c *Consumer) Consume(ctx context.Context, handler MessageHandler) error {
	for {
		raw, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Error("fetch message failed", zap.Error(err))
			if !c.pause(ctx) {
				return ctx.Err()
			}
			continue
		}

		msg := fromKafka(raw)
		msgCtx := ExtractTraceContext(ctx, msg.Headers)
		for {
			err := handler(msgCtx, msg)
			if err == nil {
				break
			}
			c.logger.Warn("message not handled, retrying",
				zap.String("topic", msg.Topic),
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
				zap.Error(err),
			)
			if !c.pause(ctx) {
				return ctx.Err()
			}
		}

		if err := c.reader.CommitMessages(ctx, raw); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Error("commit failed",
				zap.String("topic", msg.Topic),
				zap.Int64("offset", msg.Offset),
				zap.Error(err),
			)
		}
	}
}

func (c *Consumer) pause(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(c.retryDelay):
		return true
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
