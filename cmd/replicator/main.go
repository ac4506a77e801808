package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/example/ec-order-sync/internal/config"
	"github.com/example/ec-order-sync/internal/infrastructure/kafka"
	"github.com/example/ec-order-sync/internal/infrastructure/store"
	"github.com/example/ec-order-sync/internal/observability"
	"github.com/example/ec-order-sync/internal/replication"
	"go.uber.org/zap"
)

// The replicator runs the order service's replication bridge as its own
// process, for deployments that set REPLICATION_IN_PROCESS=false.
func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(config.RoleReplicator)
	if err != nil {
		log.Fatalf("[Replicator] Invalid configuration: %v", err)
	}

	logger, shutdownTelemetry, err := observability.Bootstrap(ctx, cfg)
	if err != nil {
		logger.Warn("telemetry disabled", zap.Error(err))
	}
	defer logger.Sync()

	// Shares the order service's group so only one bridge handles each fact.
	group := cfg.ConsumerGroup("replication")

	logger.Info("========================================")
	logger.Info("Replicator - user and product facts")
	logger.Info("========================================",
		zap.Strings("kafka_brokers", cfg.KafkaBrokers),
		zap.String("group", group),
		zap.String("dead_letter_topic", cfg.Topics.DeadLetter),
	)

	db, err := store.ConnectPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to connect to PostgreSQL", zap.Error(err))
	}
	defer db.Close()
	if err := store.EnsureSchema(ctx, db); err != nil {
		logger.Fatal("failed to apply schema", zap.Error(err))
	}
	logger.Info("connected to PostgreSQL")

	producer := kafka.NewProducer(cfg.KafkaBrokers)
	defer producer.Close()

	bridge := replication.NewBridge(store.NewPostgresReplicaStore(db), cfg.Topics, logger).WithProducts()
	handler := replication.NewRetryingHandler(bridge.Apply, producer, cfg.Topics.DeadLetter, cfg.Replication, logger)
	consumer := kafka.NewConsumer(cfg.KafkaBrokers, bridge.Topics(), group, logger)
	defer consumer.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		logger.Info("starting consumer", zap.Strings("topics", bridge.Topics()))
		if err := consumer.Consume(ctx, handler.Handle); err != nil && ctx.Err() == nil {
			logger.Error("consumer error", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
	case <-done:
	}

	logger.Info("shutting down")
	cancel()
	<-done

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		logger.Error("telemetry shutdown error", zap.Error(err))
	}
}
