package logging

import (
	"io"
	"os"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the JSON console logger every binary starts with.
func New(service, level string) *zap.Logger {
	return build(service, consoleCore(os.Stdout, parseLevel(level)))
}

// NewWithWriter is New with a custom sink, used by tests.
func NewWithWriter(service, level string, w io.Writer) *zap.Logger {
	return build(service, consoleCore(w, parseLevel(level)))
}

// WithOTel rebuilds the logger so records also flow to the OTLP log provider.
func WithOTel(service, level string, provider log.LoggerProvider) *zap.Logger {
	otelCore := otelzap.NewCore(service,
		otelzap.WithLoggerProvider(provider),
	)
	core := zapcore.NewTee(otelCore, consoleCore(os.Stdout, parseLevel(level)))
	return build(service, core)
}

func build(service string, core zapcore.Core) *zap.Logger {
	return zap.New(core,
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
		zap.Fields(zap.String("service.name", service)),
	)
}

func consoleCore(w io.Writer, level zapcore.Level) zapcore.Core {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.Lock(zapcore.AddSync(w)),
		level,
	)
}

func parseLevel(level string) zapcore.Level {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}
