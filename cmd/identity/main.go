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
	"github.com/example/ec-order-sync/internal/auth"
	"github.com/example/ec-order-sync/internal/config"
	"github.com/example/ec-order-sync/internal/domain/user"
	"github.com/example/ec-order-sync/internal/infrastructure/kafka"
	"github.com/example/ec-order-sync/internal/infrastructure/store"
	"github.com/example/ec-order-sync/internal/observability"
	"github.com/example/ec-order-sync/internal/outbox"
	"go.uber.org/zap"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(config.RoleIdentity)
	if err != nil {
		log.Fatalf("[Identity] Invalid configuration: %v", err)
	}

	logger, shutdownTelemetry, err := observability.Bootstrap(ctx, cfg)
	if err != nil {
		logger.Warn("telemetry disabled", zap.Error(err))
	}
	defer logger.Sync()

	logger.Info("========================================")
	logger.Info("Identity Service - users, tokens, user facts")
	logger.Info("========================================",
		zap.String("http_addr", cfg.HTTPAddr),
		zap.Strings("kafka_brokers", cfg.KafkaBrokers),
		zap.Strings("topics", cfg.Topics.UserTopics()),
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

	jwtService := auth.NewJWTService(cfg.JWTSecret, cfg.AccessTokenTTL)
	userSvc := user.NewService(
		store.NewPostgresUserStore(db),
		auth.NewBcryptHasher(auth.DefaultBcryptCost),
		jwtService,
		cfg.Topics,
		logger,
	)

	if cfg.BootstrapAdminName != "" {
		admin, err := userSvc.EnsureAdmin(ctx, cfg.BootstrapAdminName, cfg.BootstrapAdminPassword)
		if err != nil {
			logger.Fatal("failed to bootstrap admin", zap.Error(err))
		}
		logger.Info("bootstrap admin ready", zap.String("user_id", admin.ID))
	}

	var wg sync.WaitGroup

	// Facts committed with each user change are published from the outbox.
	relay := outbox.NewRelay(store.NewPostgresOutboxStore(db), producer, cfg.Outbox, logger)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := relay.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("outbox relay stopped", zap.Error(err))
		}
	}()

	handlers := api.NewAuthHandlers(userSvc, logger)
	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: api.NewIdentityRouter(handlers, userSvc, logger),
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
