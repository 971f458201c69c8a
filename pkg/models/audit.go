package models

import (
	"time"

	"github.com/google/uuid"
)

// AuditEvent is a human readable record of a state-changing action
type AuditEvent struct {
	ID        uuid.UUID `json:"id"`
	Workspace string    `json:"workspace"`
	Provider  Provider  `json:"provider,omitempty"`
	Action    string    `json:"action"`
	Message   string    `json:"message"`
	Actor     string    `json:"actor"`
	Delta     *int      `json:"delta,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
