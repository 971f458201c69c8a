package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"

	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/redis"
	"github.com/Ramsey-B/fern/pkg/tracing/exporters"
)

type Config struct {
	AppName                       string   `env:"APP_NAME" env-default:"fern"`
	Port                          int      `env:"PORT" env-default:"3000"`
	LogLevel                      string   `env:"LOG_LEVEL" env-default:"info"`
	PrettyLogs                    bool     `env:"PRETTY_LOGS" env-default:"false"`
	HttpServerWriteTimeoutSeconds int      `env:"HTTP_SERVER_WRITE_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerReadTimeoutSeconds  int      `env:"HTTP_SERVER_READ_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerIdleTimeoutSeconds  int      `env:"HTTP_SERVER_IDLE_TIMEOUT_SECONDS" env-default:"10"`
	ReadHeaderTimeoutSeconds      int      `env:"HTTP_SERVER_READ_HEADER_TIMEOUT_SECONDS" env-default:"10"`
	AllowOrigins                  []string `env:"HTTP_SERVER_ALLOW_ORIGINS" env-default:"*"`
	AllowMethods                  []string `env:"HTTP_SERVER_ALLOW_METHODS" env-default:"GET,POST,PUT,DELETE"`
	StartupMaxAttempts            int      `env:"STARTUP_MAX_ATTEMPTS" env-default:"5"`

	// Graceful shutdown budget
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" env-default:"15s"`

	// State snapshot DSN: file path, file://, memory://, postgres:// or sqlite://
	StateDSN string `env:"STATE_DSN" env-default:"fern-state.json"`
	// Migration folder for the postgres state backend
	StateMigrationsPath string `env:"STATE_MIGRATIONS_PATH" env-default:"db/pg"`
	// Debounce window for state saves
	StateDebounce time.Duration `env:"STATE_DEBOUNCE" env-default:"120ms"`

	// Secret backend: memory, file or redis
	SecretsBackend string `env:"SECRETS_BACKEND" env-default:"file"`
	// Secret file path for the file backend
	SecretsPath string `env:"SECRETS_PATH" env-default:"fern-secrets.json"`
	// Master key secrets are encrypted with
	SecretsMasterKey string `env:"SECRETS_MASTER_KEY" env-default:""`

	// Item catalog seed (YAML)
	CatalogSeedPath string `env:"CATALOG_SEED_PATH" env-default:""`
	// Directory guarded backups are written to; empty disables backups
	BackupDir string `env:"BACKUP_DIR" env-default:""`
	// Minimum time between backups of the same scope
	BackupCooldown time.Duration `env:"BACKUP_COOLDOWN" env-default:"10m"`
	// Seed for the simulated remote drift
	DriftSeed int `env:"DRIFT_SEED" env-default:"0"`

	// Retention caps
	MaxSyncJobs      int `env:"MAX_SYNC_JOBS" env-default:"50"`
	MaxRetryJobs     int `env:"MAX_RETRY_JOBS" env-default:"200"`
	MaxWebhookEvents int `env:"MAX_WEBHOOK_EVENTS" env-default:"500"`
	MaxLedgerEvents  int `env:"MAX_LEDGER_EVENTS" env-default:"5000"`
	MaxAuditEvents   int `env:"MAX_AUDIT_EVENTS" env-default:"500"`

	// Auth Issuer URL
	AuthIssuerURL string `env:"AUTH_ISSUER_URL" env-default:""`
	// Auth Client ID
	AuthClientID string `env:"AUTH_CLIENT_ID" env-default:""`
	// Auth Enabled - when false, the X-Actor header names the caller
	AuthEnabled bool `env:"AUTH_ENABLED" env-default:"false"`

	// Enable Redis (distributed lock, dead letters, rate limiting, redis secret backend)
	RedisEnabled bool `env:"REDIS_ENABLED" env-default:"false"`
	// Redis host
	RedisHost string `env:"REDIS_HOST" env-default:"localhost"`
	// Redis port
	RedisPort int `env:"REDIS_PORT" env-default:"6379"`
	// Redis password
	RedisPassword string `env:"REDIS_PASSWORD" env-default:""`
	// Redis database number
	RedisDB int `env:"REDIS_DB" env-default:"0"`
	// Dead-letter stream for abandoned retries
	RedisDLQStream string `env:"REDIS_DLQ_STREAM" env-default:"fern:retries:abandoned"`

	// Webhook intake limit per workspace and provider
	WebhookRateLimit int64 `env:"WEBHOOK_RATE_LIMIT" env-default:"120"`
	// Webhook intake window
	WebhookRateWindow time.Duration `env:"WEBHOOK_RATE_WINDOW" env-default:"1m"`

	// Enable Kafka publishing and the webhook consumer
	KafkaEnabled bool `env:"KAFKA_ENABLED" env-default:"false"`
	// Kafka brokers (comma-separated)
	KafkaBrokers string `env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	// Kafka topic for audit events
	KafkaAuditTopic string `env:"KAFKA_AUDIT_TOPIC" env-default:"fern.audit"`
	// Kafka topic for sync job records
	KafkaSyncJobTopic string `env:"KAFKA_SYNC_JOB_TOPIC" env-default:"fern.sync-jobs"`
	// Kafka topic carrying raw webhook payloads
	KafkaWebhookTopic string `env:"KAFKA_WEBHOOK_TOPIC" env-default:"fern.webhooks"`
	// Consumer group for the webhook topic
	KafkaWebhookGroup string `env:"KAFKA_WEBHOOK_GROUP" env-default:"fern-webhooks"`

	// Scheduler settings
	// Retry scheduler poll interval
	SchedulerPollInterval time.Duration `env:"SCHEDULER_POLL_INTERVAL" env-default:"30s"`
	// Enable/disable the retry scheduler
	SchedulerEnabled bool `env:"SCHEDULER_ENABLED" env-default:"true"`
	// Retries processed per run
	SchedulerBatchSize int `env:"SCHEDULER_BATCH_SIZE" env-default:"10"`

	// Tracing settings
	// Enable OTLP tracing export (set to true to send traces to collector)
	OTLPEnabled bool `env:"OTLP_ENABLED" env-default:"false"`
	// OTLP collector endpoint
	OTLPEndpoint string `env:"OTLP_ENDPOINT" env-default:"localhost:4317"`
	// OTLP protocol (grpc or http)
	OTLPProtocol string `env:"OTLP_PROTOCOL" env-default:"grpc"`
	// Disable TLS for OTLP (for local development)
	OTLPInsecure bool `env:"OTLP_INSECURE" env-default:"true"`
}

// Load reads an optional .env file and then the environment
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return &cfg, nil
}

// Redis returns the Redis client settings
func (c *Config) Redis() redis.Config {
	return redis.Config{
		Host:     c.RedisHost,
		Port:     c.RedisPort,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	}
}

// Kafka returns the producer settings
func (c *Config) Kafka() kafka.Config {
	return kafka.Config{
		Brokers:      kafka.ParseBrokers(c.KafkaBrokers),
		AuditTopic:   c.KafkaAuditTopic,
		SyncJobTopic: c.KafkaSyncJobTopic,
	}
}

// KafkaConsumer returns the webhook consumer settings
func (c *Config) KafkaConsumer() kafka.ConsumerConfig {
	cfg := kafka.DefaultConsumerConfig()
	cfg.Brokers = kafka.ParseBrokers(c.KafkaBrokers)
	cfg.Topic = c.KafkaWebhookTopic
	cfg.GroupID = c.KafkaWebhookGroup
	return cfg
}

// OTLP returns the trace exporter settings
func (c *Config) OTLP() exporters.OTLPConfig {
	return exporters.OTLPConfig{
		Endpoint: c.OTLPEndpoint,
		Protocol: c.OTLPProtocol,
		Insecure: c.OTLPInsecure,
	}
}
