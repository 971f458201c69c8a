package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "fern", cfg.AppName)
	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, "fern-state.json", cfg.StateDSN)
	assert.Equal(t, 120*time.Millisecond, cfg.StateDebounce)
	assert.Equal(t, "file", cfg.SecretsBackend)
	assert.Equal(t, 10*time.Minute, cfg.BackupCooldown)
	assert.Equal(t, 30*time.Second, cfg.SchedulerPollInterval)
	assert.Equal(t, []string{"GET", "POST", "PUT", "DELETE"}, cfg.AllowMethods)
	assert.False(t, cfg.RedisEnabled)
	assert.False(t, cfg.KafkaEnabled)
}

func TestLoad_Overrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PORT", "8080")
	t.Setenv("STATE_DSN", "sqlite:///tmp/fern.db")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("SCHEDULER_POLL_INTERVAL", "5s")
	t.Setenv("WEBHOOK_RATE_LIMIT", "10")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "sqlite:///tmp/fern.db", cfg.StateDSN)
	assert.Equal(t, 5*time.Second, cfg.SchedulerPollInterval)
	assert.Equal(t, int64(10), cfg.WebhookRateLimit)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka().Brokers)
	assert.Equal(t, "fern.webhooks", cfg.KafkaConsumer().Topic)
}
