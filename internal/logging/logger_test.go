package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewWithWriter_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter("order-service", "debug", &buf)

	logger.Info("order created", zap.Int64("order_id", 42))
	require.NoError(t, logger.Sync())

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "order created", entry["msg"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "order-service", entry["service.name"])
	assert.Equal(t, float64(42), entry["order_id"])
	assert.Contains(t, entry, "ts")
}

func TestNewWithWriter_LevelFilter(t *testing.T) {
	tests := []struct {
		name   string
		level  string
		logged bool
	}{
		{"debug passes debug", "debug", true},
		{"info drops debug", "info", false},
		{"unknown level falls back to info", "verbose", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewWithWriter("svc", tt.level, &buf)

			logger.Debug("noise")
			_ = logger.Sync()

			assert.Equal(t, tt.logged, buf.Len() > 0)
		})
	}
}
