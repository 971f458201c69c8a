package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Gobusters/ectolinq"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/Ramsey-B/fern/pkg/webhook"
)

// RunConnectedSync runs one sync pass against items. A blocked pass is
// recorded as a failed job and queued for retry; it returns false.
func (e *Engine) RunConnectedSync(ctx context.Context, provider models.Provider, workspace string, items []models.Item) bool {
	ctx, span := tracing.StartSpan(ctx, "Engine.RunConnectedSync")
	defer span.End()

	e.mu.Lock()
	defer e.unlockAndFlush(ctx)

	_, ok := e.runSyncLocked(ctx, provider, normalizeWorkspace(workspace), items, true)
	return ok
}

// SyncWorkspace runs a sync pass over the catalog's items for the workspace
// and returns the recorded job.
func (e *Engine) SyncWorkspace(ctx context.Context, provider models.Provider, workspace string) (models.SyncJob, error) {
	ctx, span := tracing.StartSpan(ctx, "Engine.SyncWorkspace")
	defer span.End()

	workspace = normalizeWorkspace(workspace)
	items, err := e.catalog.ListItems(ctx, workspace)
	if err != nil {
		return models.SyncJob{}, fmt.Errorf("failed to list items: %w", err)
	}

	e.mu.Lock()
	defer e.unlockAndFlush(ctx)

	job, _ := e.runSyncLocked(ctx, provider, workspace, items, true)
	return job, nil
}

// SyncJobs lists the workspace's sync jobs, newest first
func (e *Engine) SyncJobs(workspace string) []models.SyncJob {
	e.mu.Lock()
	defer e.mu.Unlock()

	return filterWorkspace(e.syncJobs, workspace, func(j models.SyncJob) string { return j.Workspace })
}

func (e *Engine) itemsLocked(ctx context.Context, workspace string) []models.Item {
	items, err := e.catalog.ListItems(ctx, workspace)
	if err != nil {
		e.logger.WithContext(ctx).WithError(err).Warnf("failed to list items for workspace %s", workspace)
		return nil
	}
	return items
}

func (e *Engine) runSyncLocked(ctx context.Context, provider models.Provider, workspace string, items []models.Item, enqueueRetry bool) (models.SyncJob, bool) {
	started := e.now()
	display := provider.DisplayName()

	if err := e.prepareConnectionLocked(ctx, provider, workspace); err != nil {
		job := models.SyncJob{
			ID:         uuid.New(),
			Provider:   provider,
			Workspace:  workspace,
			StartedAt:  started,
			FinishedAt: e.now(),
			Status:     models.SyncJobStatusFailed,
			Message:    fmt.Sprintf("%s sync blocked: %s", display, blockedReason(err)),
		}
		e.syncJobs = prepend(e.syncJobs, job, e.limits.SyncJobs)
		if enqueueRetry {
			e.enqueueRetryLocked(provider, workspace, job.Message)
		}
		e.auditLocked(ctx, workspace, provider, "sync.blocked", job.Message, nil)
		e.publishSyncJobLocked(job)
		e.persistLocked()
		metrics.RecordSync(string(provider), string(job.Status), job.FinishedAt.Sub(started))

		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"workspace": workspace,
			"provider":  provider,
		}).Warn("sync blocked")
		return job, false
	}

	sample := items
	if len(sample) > SampleSize {
		sample = sample[:SampleSize]
	}

	var conflicts, events, pushed int
	for _, item := range sample {
		remote := RemoteUnits(e.drift, item.ID, item.OnHand)
		if abs(remote-item.OnHand) < DeltaThreshold(item.OnHand) {
			pushed++
			continue
		}

		conflicts++
		e.addConflictLocked(models.Conflict{
			Provider:    provider,
			Workspace:   workspace,
			Type:        models.ConflictQuantityMismatch,
			ItemID:      item.ID,
			ExternalRef: item.Barcode,
			RemoteName:  item.Name,
			LocalUnits:  item.OnHand,
			RemoteUnits: remote,
		})

		if events < MaxSyntheticEventsPerPass {
			e.addWebhookEventLocked(provider, workspace, remoteUpdateLine(item, remote))
			events++
		}
	}

	if len(items) >= RemoteOnlyThreshold {
		sum := charSum(string(provider) + "|" + workspace)
		n := sum%900 + 100
		e.addConflictLocked(models.Conflict{
			Provider:    provider,
			Workspace:   workspace,
			Type:        models.ConflictMissingLocalItem,
			ExternalRef: fmt.Sprintf("REMOTE-%s-%d", strings.ToUpper(string(provider)), n),
			RemoteName:  fmt.Sprintf("%s remote item %d", display, n),
			RemoteUnits: sum%25 + 1,
		})
		conflicts++
	}

	finished := e.now()
	job := models.SyncJob{
		ID:            uuid.New(),
		Provider:      provider,
		Workspace:     workspace,
		StartedAt:     started,
		FinishedAt:    finished,
		Pulled:        len(sample),
		Pushed:        pushed,
		Conflicts:     conflicts,
		WebhookEvents: events,
		Status:        models.SyncJobStatusSuccess,
		Message:       fmt.Sprintf("Synced %d items with %s", len(sample), display),
	}
	e.syncJobs = prepend(e.syncJobs, job, e.limits.SyncJobs)

	if conn, ok := e.connections[connKey{workspace, provider}]; ok {
		conn.LastSyncAt = timePtr(finished)
		e.rederiveLocked(ctx, conn)
	}
	e.resolveQueuedRetriesLocked(provider, workspace)

	e.auditLocked(ctx, workspace, provider, "sync.completed", job.Message, nil)
	e.publishSyncJobLocked(job)
	e.persistLocked()
	metrics.RecordSync(string(provider), string(job.Status), finished.Sub(started))
	return job, true
}

func remoteUpdateLine(item models.Item, remote int) string {
	ref := item.Barcode
	if ref == "" {
		ref = item.ID
	}
	return fmt.Sprintf("event=inventory.updated id=%s barcode=%s qty=%d", item.ID, ref, remote)
}

func blockedReason(err error) string {
	switch {
	case errors.Is(err, ErrCredentialMissing):
		return "no access token is stored"
	case errors.Is(err, ErrCredentialExpired):
		return "access token expired and no refresh token is stored"
	case errors.Is(err, ErrSecretWriteFailed):
		return "refreshed token could not be stored"
	default:
		return err.Error()
	}
}

// addWebhookEventLocked records one pending event for line
func (e *Engine) addWebhookEventLocked(provider models.Provider, workspace, line string) models.WebhookEvent {
	parsed := webhook.ParseLine(line)
	now := e.now()
	event := models.WebhookEvent{
		ID:             uuid.New(),
		Provider:       provider,
		Workspace:      workspace,
		ReceivedAt:     now,
		UpdatedAt:      now,
		EventType:      parsed.EventType(),
		ExternalID:     parsed.ExternalID(),
		PayloadPreview: webhook.Preview(line),
		Status:         models.WebhookStatusPending,
	}
	e.webhookEvents = prepend(e.webhookEvents, event, e.limits.WebhookEvents)
	metrics.RecordWebhookEvent(string(provider), string(event.Status))
	return event
}

func filterWorkspace[T any](list []T, workspace string, workspaceOf func(T) string) []T {
	out := ectolinq.Filter(list, func(v T) bool { return workspaceOf(v) == workspace })
	if out == nil {
		return make([]T, 0)
	}
	return out
}
