package models

import (
	"time"

	"github.com/google/uuid"
)

// SyncJobStatus is the outcome of a sync pass
type SyncJobStatus string

const (
	SyncJobStatusSuccess SyncJobStatus = "success"
	SyncJobStatusFailed  SyncJobStatus = "failed"
)

// SyncJob is the immutable record of one sync attempt
type SyncJob struct {
	ID            uuid.UUID     `json:"id"`
	Provider      Provider      `json:"provider"`
	Workspace     string        `json:"workspace"`
	StartedAt     time.Time     `json:"started_at"`
	FinishedAt    time.Time     `json:"finished_at"`
	Pulled        int           `json:"pulled"`
	Pushed        int           `json:"pushed"`
	Conflicts     int           `json:"conflicts"`
	WebhookEvents int           `json:"webhook_events"`
	Status        SyncJobStatus `json:"status"`
	Message       string        `json:"message"`
}

// SyncRetryStatus is the lifecycle state of a retry job
type SyncRetryStatus string

const (
	SyncRetryStatusQueued    SyncRetryStatus = "queued"
	SyncRetryStatusResolved  SyncRetryStatus = "resolved"
	SyncRetryStatusAbandoned SyncRetryStatus = "abandoned"
)

// SyncRetryJob is a pending recovery attempt for a failed sync.
// At most one queued job exists per (provider, workspace).
type SyncRetryJob struct {
	ID            uuid.UUID       `json:"id"`
	Provider      Provider        `json:"provider"`
	Workspace     string          `json:"workspace"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	AttemptCount  int             `json:"attempt_count"`
	MaxAttempts   int             `json:"max_attempts"`
	NextAttemptAt time.Time       `json:"next_attempt_at"`
	Status        SyncRetryStatus `json:"status"`
	LastError     string          `json:"last_error,omitempty"`
}
