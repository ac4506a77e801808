package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "broker-1:9092,broker-2:9092")

	cfg, err := Load(RoleOrder)

	require.NoError(t, err)
	assert.Equal(t, "order-service", cfg.ServiceName)
	assert.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "user_created", cfg.Topics.UserCreated)
	assert.Equal(t, "replication.dlq", cfg.Topics.DeadLetter)
	assert.Equal(t, uint64(5), cfg.Replication.MaxAttempts)
	assert.Equal(t, 200*time.Millisecond, cfg.Replication.InitialBackoff)
	assert.Equal(t, "order_users", cfg.ConsumerGroup("users"))
	assert.False(t, cfg.Telemetry.Enabled())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SERVICE_NAME", "orders-eu")
	t.Setenv("KAFKA_GROUP_PREFIX", "orders-eu")
	t.Setenv("TOPIC_USER_DELETED", "identity.user_deleted")
	t.Setenv("REPLICATION_MAX_ATTEMPTS", "9")
	t.Setenv("OTEL_ENDPOINT", "collector:4318")

	cfg, err := Load(RoleOrder)

	require.NoError(t, err)
	assert.Equal(t, "orders-eu", cfg.ServiceName)
	assert.Equal(t, "identity.user_deleted", cfg.Topics.UserDeleted)
	assert.Equal(t, uint64(9), cfg.Replication.MaxAttempts)
	assert.Equal(t, "orders-eu_products", cfg.ConsumerGroup("products"))
	assert.True(t, cfg.Telemetry.Enabled())
}

func TestLoad_ReplicatorSharesOrderGroup(t *testing.T) {
	cfg, err := Load(RoleReplicator)

	require.NoError(t, err)
	assert.Equal(t, "replicator-service", cfg.ServiceName)
	assert.Equal(t, "order_replication", cfg.ConsumerGroup("replication"))
}

func TestLoad_IdentityRequiresStrongSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "too-short")

	_, err := Load(RoleIdentity)
	assert.ErrorIs(t, err, ErrWeakJWTSecret)

	t.Setenv("JWT_SECRET", "0123456789abcdef0123456789abcdef")
	cfg, err := Load(RoleIdentity)
	require.NoError(t, err)
	assert.Equal(t, "identity-service", cfg.ServiceName)
}

func TestLoad_BootstrapAdminNeedsPassword(t *testing.T) {
	t.Setenv("JWT_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("BOOTSTRAP_ADMIN_NAME", "root")

	_, err := Load(RoleIdentity)
	assert.ErrorIs(t, err, ErrMissingAdminSecret)

	t.Setenv("BOOTSTRAP_ADMIN_PASSWORD", "change-me-please")
	cfg, err := Load(RoleIdentity)
	require.NoError(t, err)
	assert.Equal(t, "root", cfg.BootstrapAdminName)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		role    Role
		wantErr error
	}{
		{"missing database", func(c *Config) { c.DatabaseURL = "" }, RoleOrder, ErrMissingDatabaseURL},
		{"missing brokers", func(c *Config) { c.KafkaBrokers = nil }, RoleReplicator, ErrMissingBrokers},
		{"empty broker entry", func(c *Config) { c.KafkaBrokers = []string{""} }, RoleCatalog, ErrMissingBrokers},
		{"catalog without identity url", func(c *Config) { c.IdentityURL = "" }, RoleCatalog, ErrMissingIdentityURL},
		{"replicator ignores identity url", func(c *Config) { c.IdentityURL = "" }, RoleReplicator, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				DatabaseURL:  "postgres://localhost/db",
				KafkaBrokers: []string{"localhost:9092"},
				IdentityURL:  "http://identity",
			}
			tt.mutate(cfg)

			err := cfg.Validate(tt.role)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
