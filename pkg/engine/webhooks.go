package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Gobusters/ectolinq"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/Ramsey-B/fern/pkg/webhook"
)

// Ingest records one pending webhook event per non-empty line of raw and
// extracts conflicts against the workspace's catalog items. It returns the
// number of events created.
func (e *Engine) Ingest(ctx context.Context, raw string, provider models.Provider, workspace string) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "Engine.Ingest")
	defer span.End()

	workspace = normalizeWorkspace(workspace)
	lines := webhook.SplitLines(raw)
	if len(lines) == 0 {
		return 0, nil
	}

	items, err := e.catalog.ListItems(ctx, workspace)
	if err != nil {
		return 0, fmt.Errorf("failed to list items: %w", err)
	}

	e.mu.Lock()
	defer e.unlockAndFlush(ctx)

	for _, line := range lines {
		e.addWebhookEventLocked(provider, workspace, line)
	}

	conflicts := 0
	for _, line := range lines {
		if conflict, ok := conflictFromLine(webhook.ParseLine(line), items); ok {
			conflict.Provider = provider
			conflict.Workspace = workspace
			if e.addConflictLocked(conflict) {
				conflicts++
			}
		}
	}

	e.auditLocked(ctx, workspace, provider, "webhook.ingested",
		fmt.Sprintf("Ingested %d %s webhook events (%d new conflicts)", len(lines), provider.DisplayName(), conflicts), nil)
	e.persistLocked()
	return len(lines), nil
}

// conflictFromLine compares a webhook line to local items. A matched barcode
// with an equal or absent quantity is not a conflict.
func conflictFromLine(line webhook.Line, items []models.Item) (models.Conflict, bool) {
	barcode := line.Barcode()
	qty, hasQty := line.Quantity()

	if barcode != "" {
		idx := ectolinq.FindIndexWhere(items, func(item models.Item) bool { return strings.EqualFold(item.Barcode, barcode) })
		if idx >= 0 {
			item := items[idx]
			if !hasQty || qty == item.OnHand {
				return models.Conflict{}, false
			}
			return models.Conflict{
				Type:        models.ConflictQuantityMismatch,
				ItemID:      item.ID,
				ExternalRef: barcode,
				RemoteName:  item.Name,
				LocalUnits:  item.OnHand,
				RemoteUnits: qty,
			}, true
		}
	}

	remoteName := line.Name()
	if remoteName == "" {
		remoteName = barcode
	}
	if !hasQty {
		qty = 0
	}
	return models.Conflict{
		Type:        models.ConflictMissingLocalItem,
		ExternalRef: barcode,
		RemoteName:  remoteName,
		RemoteUnits: qty,
	}, true
}

// WebhookEvents lists the workspace's webhook events, newest first
func (e *Engine) WebhookEvents(workspace string) []models.WebhookEvent {
	e.mu.Lock()
	defer e.mu.Unlock()

	return filterWorkspace(e.webhookEvents, workspace, func(ev models.WebhookEvent) string { return ev.Workspace })
}

// ApplyWebhookEvent marks a pending or failed event applied. Applying an
// applied event again only touches its metadata; ignored events are terminal.
func (e *Engine) ApplyWebhookEvent(ctx context.Context, id uuid.UUID) (models.WebhookEvent, error) {
	ctx, span := tracing.StartSpan(ctx, "Engine.ApplyWebhookEvent")
	defer span.End()

	e.mu.Lock()
	defer e.unlockAndFlush(ctx)

	event := e.webhookEventLocked(id)
	if event == nil {
		return models.WebhookEvent{}, ErrWebhookEventNotFound
	}
	if event.Status == models.WebhookStatusIgnored {
		return models.WebhookEvent{}, ErrWebhookEventTerminal
	}

	now := e.now()
	if event.Status != models.WebhookStatusApplied {
		event.Status = models.WebhookStatusApplied
		event.Note = fmt.Sprintf("applied at %s", now.UTC().Format(time.RFC3339))
		metrics.RecordWebhookEvent(string(event.Provider), string(event.Status))
	}
	event.UpdatedAt = now

	e.auditLocked(ctx, event.Workspace, event.Provider, "webhook.applied",
		fmt.Sprintf("Applied %s event %s", event.Provider.DisplayName(), event.EventType), nil)
	e.persistLocked()
	return *event, nil
}

// IgnoreWebhookEvent marks a pending or failed event ignored. Ignoring twice is
// a no-op; applied events are terminal.
func (e *Engine) IgnoreWebhookEvent(ctx context.Context, id uuid.UUID) (models.WebhookEvent, error) {
	ctx, span := tracing.StartSpan(ctx, "Engine.IgnoreWebhookEvent")
	defer span.End()

	e.mu.Lock()
	defer e.unlockAndFlush(ctx)

	event := e.webhookEventLocked(id)
	if event == nil {
		return models.WebhookEvent{}, ErrWebhookEventNotFound
	}
	switch event.Status {
	case models.WebhookStatusApplied:
		return models.WebhookEvent{}, ErrWebhookEventTerminal
	case models.WebhookStatusIgnored:
		return *event, nil
	}

	event.Status = models.WebhookStatusIgnored
	event.UpdatedAt = e.now()
	e.persistLocked()
	metrics.RecordWebhookEvent(string(event.Provider), string(event.Status))
	return *event, nil
}

func (e *Engine) webhookEventLocked(id uuid.UUID) *models.WebhookEvent {
	idx := ectolinq.FindIndexWhere(e.webhookEvents, func(ev models.WebhookEvent) bool { return ev.ID == id })
	if idx < 0 {
		return nil
	}
	return &e.webhookEvents[idx]
}
