package replication

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/example/ec-order-sync/internal/config"
	"github.com/example/ec-order-sync/internal/infrastructure/kafka"
	"go.uber.org/zap"
)

const (
	HeaderError         = "x-error"
	HeaderAttempts      = "x-attempts"
	HeaderOriginalTopic = "x-original-topic"
)

// Publisher writes a message to the broker.
type Publisher interface {
	Publish(ctx context.Context, msg kafka.Message) error
}

// RetryingHandler retries transient failures with exponential backoff and
// parks what still fails on the dead-letter topic. It only returns an error
// when the dead-letter write itself fails, so the consumer keeps the offset.
type RetryingHandler struct {
	apply           kafka.MessageHandler
	deadLetter      Publisher
	deadLetterTopic string
	maxAttempts     uint64
	initialBackoff  time.Duration
	maxBackoff      time.Duration
	logger          *zap.Logger
}

func NewRetryingHandler(apply kafka.MessageHandler, deadLetter Publisher, deadLetterTopic string, cfg config.Replication, logger *zap.Logger) *RetryingHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = 1
	}
	return &RetryingHandler{
		apply:           apply,
		deadLetter:      deadLetter,
		deadLetterTopic: deadLetterTopic,
		maxAttempts:     maxAttempts,
		initialBackoff:  cfg.InitialBackoff,
		maxBackoff:      cfg.MaxBackoff,
		logger:          logger,
	}
}

// IsPermanent reports failures that no retry can fix.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrMalformedFact) || errors.Is(err, ErrUnknownTopic)
}

func (h *RetryingHandler) Handle(ctx context.Context, msg kafka.Message) error {
	var attempts uint64
	operation := func() error {
		attempts++
		err := h.apply(ctx, msg)
		if err != nil && IsPermanent(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	err := backoff.RetryNotify(operation, backoff.WithContext(h.newBackOff(), ctx), func(err error, wait time.Duration) {
		h.logger.Warn("replication attempt failed",
			zap.String("topic", msg.Topic),
			zap.String("key", msg.Key),
			zap.Uint64("attempt", attempts),
			zap.Duration("retry_in", wait),
			zap.Error(err),
		)
	})
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	h.logger.Error("fact dead-lettered",
		zap.String("topic", msg.Topic),
		zap.String("key", msg.Key),
		zap.Uint64("attempts", attempts),
		zap.Bool("permanent", IsPermanent(err)),
		zap.Error(err),
	)
	if dlqErr := h.deadLetter.Publish(ctx, h.deadLetterMessage(msg, err, attempts)); dlqErr != nil {
		return fmt.Errorf("dead-letter %s@%d: %w", msg.Topic, msg.Offset, dlqErr)
	}
	return nil
}

func (h *RetryingHandler) newBackOff() backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	if h.initialBackoff > 0 {
		exp.InitialInterval = h.initialBackoff
	}
	if h.maxBackoff > 0 {
		exp.MaxInterval = h.maxBackoff
	}
	exp.MaxElapsedTime = 0
	return backoff.WithMaxRetries(exp, h.maxAttempts-1)
}

func (h *RetryingHandler) deadLetterMessage(msg kafka.Message, cause error, attempts uint64) kafka.Message {
	headers := make(map[string]string, len(msg.Headers)+3)
	for k, v := range msg.Headers {
		headers[k] = v
	}
	headers[HeaderError] = cause.Error()
	headers[HeaderAttempts] = strconv.FormatUint(attempts, 10)
	headers[HeaderOriginalTopic] = msg.Topic

	return kafka.Message{
		Topic:   h.deadLetterTopic,
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: headers,
	}
}
