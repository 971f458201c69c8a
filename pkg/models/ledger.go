package models

import (
	"time"

	"github.com/google/uuid"
)

// LedgerEventType is the kind of inventory mutation
type LedgerEventType string

const (
	LedgerReceipt         LedgerEventType = "receipt"
	LedgerAdjustment      LedgerEventType = "adjustment"
	LedgerReturn          LedgerEventType = "return"
	LedgerCountCorrection LedgerEventType = "count_correction"
)

// LedgerSyncStatus tracks whether a ledger event reached the provider
type LedgerSyncStatus string

const (
	LedgerSyncPending LedgerSyncStatus = "pending"
	LedgerSyncSynced  LedgerSyncStatus = "synced"
	LedgerSyncFailed  LedgerSyncStatus = "failed"
)

// LedgerEvent records one inventory quantity mutation
type LedgerEvent struct {
	ID             uuid.UUID        `json:"id"`
	Workspace      string           `json:"workspace"`
	CreatedAt      time.Time        `json:"created_at"`
	Actor          string           `json:"actor"`
	EventType      LedgerEventType  `json:"event_type"`
	Source         string           `json:"source"`
	Reason         string           `json:"reason"`
	ItemID         string           `json:"item_id"`
	ItemName       string           `json:"item_name"`
	Category       string           `json:"category"`
	Location       string           `json:"location"`
	DeltaUnits     int              `json:"delta_units"`
	ResultingUnits int              `json:"resulting_units"`
	SyncStatus     LedgerSyncStatus `json:"sync_status"`
	AttemptCount   int              `json:"attempt_count"`
	LastSyncAt     *time.Time       `json:"last_sync_at,omitempty"`
	LastSyncError  string           `json:"last_sync_error,omitempty"`
	CorrelationID  string           `json:"correlation_id"`
}
