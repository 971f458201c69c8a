package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Config holds Kafka producer configuration
type Config struct {
	Brokers      []string
	AuditTopic   string
	SyncJobTopic string
}

// ParseBrokers splits a comma-separated broker string
func ParseBrokers(brokers string) []string {
	brokerList := make([]string, 0)
	for _, broker := range strings.Split(brokers, ",") {
		if broker = strings.TrimSpace(broker); broker != "" {
			brokerList = append(brokerList, broker)
		}
	}
	return brokerList
}

// Event types carried in EventMessage.Type
const (
	EventTypeAudit   = "audit"
	EventTypeSyncJob = "sync_job"
)

// EventMessage is the envelope for everything fern publishes
type EventMessage struct {
	Type      string          `json:"type"`
	Workspace string          `json:"workspace"`
	Provider  models.Provider `json:"provider,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	TraceID   string          `json:"trace_id,omitempty"`
	SpanID    string          `json:"span_id,omitempty"`
	Payload   any             `json:"payload"`
}

// Producer publishes audit events and sync job records
type Producer struct {
	auditWriter   *kafka.Writer
	syncJobWriter *kafka.Writer
	logger        ectologger.Logger
}

func newWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
		// dev brokers create topics on first publish
		AllowAutoTopicCreation: true,
	}
}

// NewProducer creates a new Kafka producer
func NewProducer(cfg Config, logger ectologger.Logger) *Producer {
	return &Producer{
		auditWriter:   newWriter(cfg.Brokers, cfg.AuditTopic),
		syncJobWriter: newWriter(cfg.Brokers, cfg.SyncJobTopic),
		logger:        logger,
	}
}

// Close closes the producer
func (p *Producer) Close() error {
	var firstErr error
	if err := p.auditWriter.Close(); err != nil {
		firstErr = err
	}
	if err := p.syncJobWriter.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// PublishAudit publishes one audit event
func (p *Producer) PublishAudit(ctx context.Context, event models.AuditEvent) error {
	return p.publish(ctx, p.auditWriter, &EventMessage{
		Type:      EventTypeAudit,
		Workspace: event.Workspace,
		Provider:  event.Provider,
		Timestamp: event.CreatedAt,
		Payload:   event,
	}, event.ID.String())
}

// PublishSyncJob publishes one finished sync job
func (p *Producer) PublishSyncJob(ctx context.Context, job models.SyncJob) error {
	return p.publish(ctx, p.syncJobWriter, &EventMessage{
		Type:      EventTypeSyncJob,
		Workspace: job.Workspace,
		Provider:  job.Provider,
		Timestamp: job.FinishedAt,
		Payload:   job,
	}, job.ID.String())
}

func (p *Producer) publish(ctx context.Context, writer *kafka.Writer, msg *EventMessage, id string) error {
	ctx, span := tracing.StartSpan(ctx, "Kafka.Publish")
	defer span.End()

	start := time.Now()
	span.SetAttributes(
		attribute.String("messaging.system", "kafka"),
		attribute.String("messaging.destination", writer.Topic),
		attribute.String("messaging.operation", "publish"),
		attribute.String("workspace", msg.Workspace),
		attribute.String("provider", string(msg.Provider)),
		attribute.String("event_type", msg.Type),
	)

	msg.TraceID = tracing.GetTraceID(ctx)
	msg.SpanID = tracing.GetSpanID(ctx)
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(msg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to marshal message")
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	// workspace + provider keeps one pairing's events ordered on a partition
	key := fmt.Sprintf("%s:%s", msg.Workspace, msg.Provider)
	headers := []kafka.Header{
		{Key: "workspace", Value: []byte(msg.Workspace)},
		{Key: "provider", Value: []byte(msg.Provider)},
		{Key: "type", Value: []byte(msg.Type)},
		{Key: "id", Value: []byte(id)},
	}
	if traceparent := tracing.GetTraceParent(ctx); traceparent != "" {
		headers = append(headers, kafka.Header{Key: "traceparent", Value: []byte(traceparent)})
	}
	if tracestate := tracing.GetTraceState(ctx); tracestate != "" {
		headers = append(headers, kafka.Header{Key: "tracestate", Value: []byte(tracestate)})
	}

	err = writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(key),
		Value:   data,
		Headers: headers,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to publish message")
		metrics.RecordKafkaPublish(writer.Topic, "error", time.Since(start).Seconds())
		p.logger.WithContext(ctx).WithError(err).Errorf("Failed to publish to Kafka topic %s", writer.Topic)
		return err
	}

	span.SetStatus(codes.Ok, "message published")
	metrics.RecordKafkaPublish(writer.Topic, "success", time.Since(start).Seconds())
	p.logger.WithContext(ctx).Debugf("Published %s event %s to Kafka topic %s", msg.Type, id, writer.Topic)
	return nil
}
