package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	appctx "github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// DefaultLedgerBatch is used when SyncLedger is given no positive max
const DefaultLedgerBatch = 100

// LedgerSyncResult summarizes one SyncLedger pass
type LedgerSyncResult struct {
	Attempted int             `json:"attempted"`
	Synced    int             `json:"synced"`
	Failed    int             `json:"failed"`
	Provider  models.Provider `json:"provider,omitempty"`
	Blocked   bool            `json:"blocked"`
	Message   string          `json:"message"`
}

// LedgerEventInput is a quantity change reported by the catalog
type LedgerEventInput struct {
	Workspace      string
	EventType      models.LedgerEventType
	Source         string
	Reason         string
	ItemID         string
	ItemName       string
	Category       string
	Location       string
	DeltaUnits     int
	ResultingUnits int
	CorrelationID  string
}

func validLedgerType(t models.LedgerEventType) bool {
	switch t {
	case models.LedgerReceipt, models.LedgerAdjustment, models.LedgerReturn, models.LedgerCountCorrection:
		return true
	}
	return false
}

// RecordLedgerEvent appends a pending ledger event. The actor comes from ctx.
func (e *Engine) RecordLedgerEvent(ctx context.Context, input LedgerEventInput) (models.LedgerEvent, error) {
	ctx, span := tracing.StartSpan(ctx, "Engine.RecordLedgerEvent")
	defer span.End()

	if strings.TrimSpace(input.ItemID) == "" || !validLedgerType(input.EventType) {
		return models.LedgerEvent{}, fmt.Errorf("%w: item id and a known event type are required", ErrInvalidLedgerEvent)
	}

	e.mu.Lock()
	defer e.unlockAndFlush(ctx)

	event := e.appendLedgerLocked(models.LedgerEvent{
		Workspace:      normalizeWorkspace(strings.TrimSpace(input.Workspace)),
		Actor:          appctx.GetActor(ctx),
		EventType:      input.EventType,
		Source:         input.Source,
		Reason:         input.Reason,
		ItemID:         strings.TrimSpace(input.ItemID),
		ItemName:       input.ItemName,
		Category:       input.Category,
		Location:       input.Location,
		DeltaUnits:     input.DeltaUnits,
		ResultingUnits: input.ResultingUnits,
		CorrelationID:  input.CorrelationID,
	})
	e.persistLocked()
	return event, nil
}

// appendLedgerLocked stamps and stores a pending ledger event, trimming the oldest past the cap
func (e *Engine) appendLedgerLocked(event models.LedgerEvent) models.LedgerEvent {
	event.ID = uuid.New()
	event.CreatedAt = e.now()
	event.SyncStatus = models.LedgerSyncPending
	event.AttemptCount = 0
	event.LastSyncAt = nil
	event.LastSyncError = ""
	if event.Actor == "" {
		event.Actor = appctx.DefaultActor
	}
	if event.CorrelationID == "" {
		event.CorrelationID = event.ID.String()
	}

	e.ledgerEvents = append(e.ledgerEvents, event)
	if excess := len(e.ledgerEvents) - e.limits.LedgerEvents; excess > 0 {
		e.ledgerEvents = append([]models.LedgerEvent(nil), e.ledgerEvents[excess:]...)
	}
	metrics.RecordLedgerEvents(string(event.SyncStatus), 1)
	return event
}

// LedgerEvents lists the workspace's ledger events, oldest first
func (e *Engine) LedgerEvents(workspace string) []models.LedgerEvent {
	e.mu.Lock()
	defer e.mu.Unlock()

	events := filterWorkspace(e.ledgerEvents, workspace, func(ev models.LedgerEvent) string { return ev.Workspace })
	sort.SliceStable(events, func(i, j int) bool { return events[i].CreatedAt.Before(events[j].CreatedAt) })
	return events
}

// SyncLedger pushes the workspace's unsynced ledger events, oldest first, up to
// limit, through the first provider (in fixed order) with a usable connection.
func (e *Engine) SyncLedger(ctx context.Context, workspace string, limit int) LedgerSyncResult {
	ctx, span := tracing.StartSpan(ctx, "Engine.SyncLedger")
	defer span.End()

	if limit <= 0 {
		limit = DefaultLedgerBatch
	}

	e.mu.Lock()
	defer e.unlockAndFlush(ctx)

	pending := make([]int, 0)
	for i, ev := range e.ledgerEvents {
		if ev.Workspace == workspace && ev.SyncStatus != models.LedgerSyncSynced {
			pending = append(pending, i)
		}
	}
	sort.SliceStable(pending, func(a, b int) bool {
		return e.ledgerEvents[pending[a]].CreatedAt.Before(e.ledgerEvents[pending[b]].CreatedAt)
	})
	if len(pending) > limit {
		pending = pending[:limit]
	}
	if len(pending) == 0 {
		return LedgerSyncResult{Message: "no pending ledger events"}
	}

	result := LedgerSyncResult{Attempted: len(pending)}

	var provider models.Provider
	for _, p := range models.Providers {
		if e.prepareConnectionLocked(ctx, p, workspace) == nil {
			provider = p
			break
		}
	}

	if provider == "" {
		e.markLedgerLocked(pending, models.LedgerSyncFailed, ErrNoConnectedProvider.Error())
		result.Failed = len(pending)
		result.Blocked = true
		result.Message = ErrNoConnectedProvider.Error()
		e.persistLocked()
		e.logger.WithContext(ctx).WithFields(map[string]any{
			"workspace": workspace,
			"events":    len(pending),
		}).Warn("ledger sync blocked: no connected provider")
		return result
	}

	result.Provider = provider
	job, ok := e.runSyncLocked(ctx, provider, workspace, e.itemsLocked(ctx, workspace), true)
	if ok {
		e.markLedgerLocked(pending, models.LedgerSyncSynced, "")
		result.Synced = len(pending)
		result.Message = fmt.Sprintf("Synced %d ledger events with %s", len(pending), provider.DisplayName())
	} else {
		message := fmt.Sprintf("sync with %s failed: %s", provider.DisplayName(), job.Message)
		e.markLedgerLocked(pending, models.LedgerSyncFailed, message)
		result.Failed = len(pending)
		result.Message = message
	}
	e.persistLocked()
	return result
}

func (e *Engine) markLedgerLocked(indexes []int, status models.LedgerSyncStatus, lastError string) {
	now := e.now()
	for _, i := range indexes {
		ev := &e.ledgerEvents[i]
		ev.AttemptCount++
		ev.LastSyncAt = timePtr(now)
		ev.SyncStatus = status
		ev.LastSyncError = lastError
	}
	metrics.RecordLedgerEvents(string(status), len(indexes))
}
