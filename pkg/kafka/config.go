package kafka

import (
	"time"
)

// ConsumerConfig configures the webhook payload consumer
type ConsumerConfig struct {
	// Brokers is a list of Kafka broker addresses
	Brokers []string

	// Topic carries raw webhook payloads
	Topic string

	// GroupID is the consumer group ID
	GroupID string

	MinBytes int
	MaxBytes int

	// MaxWait is the maximum time to wait for messages
	MaxWait time.Duration

	// StartOffset applies when the group has no committed offset: FirstOffset or LastOffset
	StartOffset int64

	SessionTimeout    time.Duration
	HeartbeatInterval time.Duration
}

// DefaultConsumerConfig returns a ConsumerConfig with sensible defaults
func DefaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		Brokers:           []string{"localhost:9092"},
		Topic:             "fern.webhooks",
		GroupID:           "fern-webhooks",
		MinBytes:          1,
		MaxBytes:          10e6, // 10MB
		MaxWait:           3 * time.Second,
		StartOffset:       LastOffset,
		SessionTimeout:    30 * time.Second,
		HeartbeatInterval: 3 * time.Second,
	}
}

// Offset constants
const (
	FirstOffset int64 = -2 // Start from the oldest message
	LastOffset  int64 = -1 // Start from the newest message
)
