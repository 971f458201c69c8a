package models

import (
	"time"

	"github.com/google/uuid"
)

// WebhookStatus is the lifecycle state of an inbound webhook event
type WebhookStatus string

const (
	WebhookStatusPending WebhookStatus = "pending"
	WebhookStatusApplied WebhookStatus = "applied"
	WebhookStatusIgnored WebhookStatus = "ignored"
	WebhookStatusFailed  WebhookStatus = "failed"
)

// WebhookEvent is one inbound provider event line
type WebhookEvent struct {
	ID             uuid.UUID     `json:"id"`
	Provider       Provider      `json:"provider"`
	Workspace      string        `json:"workspace"`
	ReceivedAt     time.Time     `json:"received_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
	EventType      string        `json:"event_type"`
	ExternalID     string        `json:"external_id"`
	PayloadPreview string        `json:"payload_preview"`
	Status         WebhookStatus `json:"status"`
	Note           string        `json:"note,omitempty"`
}
