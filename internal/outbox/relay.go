// Package outbox moves facts committed by the owning service onto the broker.
package outbox

import (
	"context"
	"time"

	"github.com/example/ec-order-sync/internal/config"
	"github.com/example/ec-order-sync/internal/infrastructure/kafka"
	"github.com/example/ec-order-sync/internal/infrastructure/store"
	"github.com/example/ec-order-sync/internal/model"
	"go.uber.org/zap"
)

const HeaderOutboxID = "x-outbox-id"

type Publisher interface {
	Publish(ctx context.Context, msg kafka.Message) error
}

// Relay polls the outbox and publishes pending rows in creation order.
// A row is marked published only after the broker accepted it.
type Relay struct {
	store     store.OutboxStore
	publisher Publisher
	interval  time.Duration
	batchSize int
	logger    *zap.Logger
}

func NewRelay(s store.OutboxStore, publisher Publisher, cfg config.Outbox, logger *zap.Logger) *Relay {
	if logger == nil {
		logger = zap.NewNop()
	}
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Relay{
		store:     s,
		publisher: publisher,
		interval:  interval,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Run flushes on every tick until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("outbox relay started",
		zap.Duration("interval", r.interval),
		zap.Int("batch_size", r.batchSize),
	)
	for {
		if _, err := r.Flush(ctx); err != nil && ctx.Err() == nil {
			r.logger.Error("outbox flush failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			r.logger.Info("outbox relay stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Flush publishes batches until the outbox is drained or a publish fails.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	total := 0
	for {
		var failed bool
		n, err := r.store.ProcessPending(ctx, r.batchSize, func(ctx context.Context, ev model.OutboxEvent) error {
			err := r.publisher.Publish(ctx, kafka.Message{
				Topic:   ev.Topic,
				Key:     ev.Key,
				Value:   ev.Payload,
				Headers: map[string]string{HeaderOutboxID: ev.ID},
			})
			if err != nil {
				failed = true
				r.logger.Warn("outbox publish failed, will retry",
					zap.String("event_id", ev.ID),
					zap.String("topic", ev.Topic),
					zap.Int("attempts", ev.Attempts+1),
					zap.Error(err),
				)
			}
			return err
		})
		total += n
		if err != nil {
			return total, err
		}
		if n > 0 {
			r.logger.Debug("outbox batch published", zap.Int("count", n))
		}
		if failed || n < r.batchSize {
			return total, nil
		}
	}
}
