package models

import (
	"time"

	"github.com/google/uuid"
)

// ConflictType classifies a mismatch between local and remote state
type ConflictType string

const (
	ConflictQuantityMismatch  ConflictType = "quantity_mismatch"
	ConflictMissingLocalItem  ConflictType = "missing_local_item"
	ConflictMissingRemoteItem ConflictType = "missing_remote_item"
	ConflictMetadataMismatch  ConflictType = "metadata_mismatch"
)

// ConflictStatus doubles as the resolution applied to a conflict
type ConflictStatus string

const (
	ConflictUnresolved   ConflictStatus = "unresolved"
	ConflictKeepLocal    ConflictStatus = "keep_local"
	ConflictAcceptRemote ConflictStatus = "accept_remote"
)

// Conflict is a detected mismatch between local and remote state
type Conflict struct {
	ID          uuid.UUID      `json:"id"`
	Provider    Provider       `json:"provider"`
	Workspace   string         `json:"workspace"`
	CreatedAt   time.Time      `json:"created_at"`
	Type        ConflictType   `json:"type"`
	ItemID      string         `json:"item_id,omitempty"`
	ExternalRef string         `json:"external_ref,omitempty"`
	RemoteName  string         `json:"remote_name,omitempty"`
	LocalUnits  int            `json:"local_units"`
	RemoteUnits int            `json:"remote_units"`
	Status      ConflictStatus `json:"status"`
	ResolvedAt  *time.Time     `json:"resolved_at,omitempty"`
}
