package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/example/ec-order-sync/internal/api"
	"github.com/example/ec-order-sync/internal/config"
	"github.com/example/ec-order-sync/internal/domain/product"
	"github.com/example/ec-order-sync/internal/identity"
	"github.com/example/ec-order-sync/internal/infrastructure/kafka"
	"github.com/example/ec-order-sync/internal/infrastructure/store"
	"github.com/example/ec-order-sync/internal/observability"
	"github.com/example/ec-order-sync/internal/outbox"
	"github.com/example/ec-order-sync/internal/replication"
	"go.uber.org/zap"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(config.RoleCatalog)
	if err != nil {
		log.Fatalf("[Catalog] Invalid configuration: %v", err)
	}

	logger, shutdownTelemetry, err := observability.Bootstrap(ctx, cfg)
	if err != nil {
		logger.Warn("telemetry disabled", zap.Error(err))
	}
	defer logger.Sync()

	logger.Info("========================================")
	logger.Info("Catalog Service - product registry")
	logger.Info("========================================",
		zap.String("http_addr", cfg.HTTPAddr),
		zap.Strings("kafka_brokers", cfg.KafkaBrokers),
		zap.String("identity_url", cfg.IdentityURL),
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

	productSvc := product.NewService(store.NewPostgresCatalogStore(db), cfg.Topics, logger)

	var wg sync.WaitGroup

	relay := outbox.NewRelay(store.NewPostgresOutboxStore(db), producer, cfg.Outbox, logger)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := relay.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("outbox relay stopped", zap.Error(err))
		}
	}()

	// The catalog keeps its own user replica under its own consumer group.
	bridge := replication.NewBridge(store.NewPostgresReplicaStore(db), cfg.Topics, logger)
	handler := replication.NewRetryingHandler(bridge.Apply, producer, cfg.Topics.DeadLetter, cfg.Replication, logger)
	consumer := kafka.NewConsumer(cfg.KafkaBrokers, bridge.Topics(), cfg.ConsumerGroup("replication"), logger)
	defer consumer.Close()

	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info("replication bridge started", zap.Strings("topics", bridge.Topics()))
		if err := consumer.Consume(ctx, handler.Handle); err != nil && ctx.Err() == nil {
			logger.Error("replication consumer stopped", zap.Error(err))
		}
	}()

	verifier := identity.NewClient(cfg.IdentityURL, cfg.VerifyTimeout)
	handlers := api.NewCatalogHandlers(productSvc, logger)
	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: api.NewCatalogRouter(handlers, verifier, logger),
	}

	go func() {
		logger.Info("server started", zap.String("addr", cfg.HTTPAddr))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	cancel()
	wg.Wait()

	if err := shutdownTelemetry(shutdownCtx); err != nil {
		logger.Error("telemetry shutdown error", zap.Error(err))
	}
	logger.Info("server stopped")
}
