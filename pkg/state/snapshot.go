// Package state persists the engine's collections as one JSON snapshot behind
// a pluggable backend (file, memory, postgres, sqlite) and a debounced writer.
package state

import (
	"context"
	"errors"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/models"
)

// SchemaVersion is written into every snapshot
const SchemaVersion = 1

// ErrCorruptState is returned by a backend whose stored snapshot cannot be decoded
var ErrCorruptState = errors.New("persisted state is corrupt")

// Snapshot is everything the engine owns, in persisted form
type Snapshot struct {
	Version       int                   `json:"version"`
	SavedAt       time.Time             `json:"saved_at"`
	Connections   []models.Connection   `json:"connections"`
	SyncJobs      []models.SyncJob      `json:"sync_jobs"`
	RetryJobs     []models.SyncRetryJob `json:"retry_jobs"`
	WebhookEvents []models.WebhookEvent `json:"webhook_events"`
	Conflicts     []models.Conflict     `json:"conflicts"`
	LedgerEvents  []models.LedgerEvent  `json:"ledger_events"`
	AuditEvents   []models.AuditEvent   `json:"audit_events"`
}

// Empty returns a snapshot with no records
func Empty() *Snapshot {
	return &Snapshot{Version: SchemaVersion}
}

// Backend loads and saves snapshots. Load returns (nil, nil) when nothing has been saved yet.
type Backend interface {
	Load(ctx context.Context) (*Snapshot, error)
	Save(ctx context.Context, snapshot *Snapshot) error
	Close() error
}

// LoadOrEmpty loads the stored snapshot. Missing or corrupt state yields an empty
// snapshot; corruption is logged. Any other backend error is returned.
func LoadOrEmpty(ctx context.Context, backend Backend, logger ectologger.Logger) (*Snapshot, error) {
	snapshot, err := backend.Load(ctx)
	if errors.Is(err, ErrCorruptState) {
		logger.WithContext(ctx).WithError(err).Warn("discarding unreadable persisted state, starting empty")
		return Empty(), nil
	}
	if err != nil {
		return nil, err
	}
	if snapshot == nil {
		return Empty(), nil
	}
	return snapshot, nil
}
