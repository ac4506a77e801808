package observability

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/ec-order-sync/internal/config"
	"github.com/example/ec-order-sync/internal/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.uber.org/zap"
)

const maxQueueSize = 2048

// ShutdownFunc flushes and stops whatever a Setup call started.
type ShutdownFunc func(context.Context) error

func noopShutdown(context.Context) error { return nil }

func newResource(cfg *config.Config) (*resource.Resource, error) {
	return resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(config.ServiceVersion),
		),
	)
}

func authHeaders(cfg config.Telemetry) map[string]string {
	if cfg.AuthHeader == "" {
		return nil
	}
	return map[string]string{"Authorization": cfg.AuthHeader}
}

// SetupTracing installs the global propagator and, when an OTLP endpoint is
// configured, a batching tracer provider.
func SetupTracing(ctx context.Context, cfg *config.Config) (ShutdownFunc, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if !cfg.Telemetry.Enabled() {
		return noopShutdown, nil
	}

	res, err := newResource(cfg)
	if err != nil {
		return noopShutdown, fmt.Errorf("failed to create resource: %w", err)
	}

	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(cfg.Telemetry.Endpoint),
		otlptracehttp.WithURLPath(cfg.Telemetry.TracesPath),
	}
	if h := authHeaders(cfg.Telemetry); h != nil {
		opts = append(opts, otlptracehttp.WithHeaders(h))
	}
	if cfg.Telemetry.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}

	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return noopShutdown, fmt.Errorf("OTLP trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(sdktrace.NewBatchSpanProcessor(exporter,
			sdktrace.WithExportTimeout(cfg.Telemetry.Timeout),
			sdktrace.WithMaxQueueSize(maxQueueSize),
		)),
	)
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}

// SetupLogging registers a global OTLP log provider. The returned bool is
// false when no endpoint is configured and the console logger should be kept.
func SetupLogging(ctx context.Context, cfg *config.Config) (ShutdownFunc, bool, error) {
	if !cfg.Telemetry.Enabled() {
		return noopShutdown, false, nil
	}

	res, err := newResource(cfg)
	if err != nil {
		return noopShutdown, false, fmt.Errorf("failed to create resource: %w", err)
	}

	opts := []otlploghttp.Option{
		otlploghttp.WithEndpoint(cfg.Telemetry.Endpoint),
		otlploghttp.WithURLPath(cfg.Telemetry.LogsPath),
	}
	if h := authHeaders(cfg.Telemetry); h != nil {
		opts = append(opts, otlploghttp.WithHeaders(h))
	}
	if cfg.Telemetry.Insecure {
		opts = append(opts, otlploghttp.WithInsecure())
	}

	exporter, err := otlploghttp.New(ctx, opts...)
	if err != nil {
		return noopShutdown, false, fmt.Errorf("OTLP log exporter: %w", err)
	}

	lp := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exporter,
			sdklog.WithExportTimeout(cfg.Telemetry.Timeout),
			sdklog.WithMaxQueueSize(maxQueueSize),
		)),
		sdklog.WithResource(res),
	)
	global.SetLoggerProvider(lp)

	return lp.Shutdown, true, nil
}

// Combine joins shutdown funcs, running them in reverse order.
func Combine(fns ...ShutdownFunc) ShutdownFunc {
	return func(ctx context.Context) error {
		var err error
		for i := len(fns) - 1; i >= 0; i-- {
			if fns[i] == nil {
				continue
			}
			err = errors.Join(err, fns[i](ctx))
		}
		return err
	}
}

// Bootstrap sets up tracing and OTLP logs for a binary and returns the
// logger it should use from then on.
func Bootstrap(ctx context.Context, cfg *config.Config) (*zap.Logger, ShutdownFunc, error) {
	shutdownTracing, err := SetupTracing(ctx, cfg)
	if err != nil {
		return logging.New(cfg.ServiceName, cfg.LogLevel), noopShutdown, err
	}
	shutdownLogging, enabled, err := SetupLogging(ctx, cfg)
	if err != nil {
		return logging.New(cfg.ServiceName, cfg.LogLevel), shutdownTracing, err
	}

	logger := logging.New(cfg.ServiceName, cfg.LogLevel)
	if enabled {
		logger = logging.WithOTel(cfg.ServiceName, cfg.LogLevel, global.GetLoggerProvider())
	}
	return logger, Combine(shutdownTracing, shutdownLogging), nil
}
