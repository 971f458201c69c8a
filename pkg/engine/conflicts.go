package engine

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectolinq"
	"github.com/google/uuid"

	appctx "github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

func conflictKey(c models.Conflict) string {
	return fmt.Sprintf("%s|%s|%s|%s|%s|%d|%d",
		c.Workspace, c.Provider, c.Type, c.ItemID, c.ExternalRef, c.LocalUnits, c.RemoteUnits)
}

// addConflictLocked records c unless an identical unresolved conflict already exists.
// It reports whether a new conflict was created.
func (e *Engine) addConflictLocked(c models.Conflict) bool {
	key := conflictKey(c)
	for _, existing := range e.conflicts {
		if existing.Status == models.ConflictUnresolved && conflictKey(existing) == key {
			return false
		}
	}

	c.ID = uuid.New()
	c.CreatedAt = e.now()
	c.Status = models.ConflictUnresolved
	c.ResolvedAt = nil
	e.conflicts = prepend(e.conflicts, c, 0)
	metrics.RecordConflict(string(c.Provider), string(c.Type))
	return true
}

// Conflicts lists the workspace's conflicts, newest first. An empty status returns all of them.
func (e *Engine) Conflicts(workspace string, status models.ConflictStatus) []models.Conflict {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]models.Conflict, 0)
	for _, c := range e.conflicts {
		if c.Workspace != workspace {
			continue
		}
		if status != "" && c.Status != status {
			continue
		}
		out = append(out, c)
	}
	return out
}

// ResolveConflict applies keep_local or accept_remote to an unresolved conflict.
// accept_remote takes a guarded backup of the workspace items first; if the
// backup fails nothing is changed.
func (e *Engine) ResolveConflict(ctx context.Context, id uuid.UUID, resolution models.ConflictStatus) (models.Conflict, error) {
	ctx, span := tracing.StartSpan(ctx, "Engine.ResolveConflict")
	defer span.End()

	if resolution != models.ConflictKeepLocal && resolution != models.ConflictAcceptRemote {
		return models.Conflict{}, ErrUnknownResolution
	}

	e.mu.Lock()
	defer e.unlockAndFlush(ctx)

	idx := ectolinq.FindIndexWhere(e.conflicts, func(c models.Conflict) bool { return c.ID == id })
	if idx < 0 {
		return models.Conflict{}, ErrConflictNotFound
	}
	conflict := e.conflicts[idx]
	if conflict.Status != models.ConflictUnresolved {
		return models.Conflict{}, ErrConflictAlreadyResolved
	}

	delta := 0
	message := fmt.Sprintf("Kept local value for %s conflict on %s", conflict.Type, conflictSubject(conflict))
	if resolution == models.ConflictAcceptRemote {
		applied, err := e.acceptRemoteLocked(ctx, conflict)
		if err != nil {
			e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"conflict_id": conflict.ID,
				"type":        conflict.Type,
			}).Warn("failed to accept remote value")
			return models.Conflict{}, err
		}
		delta = applied
		message = fmt.Sprintf("Accepted %s value for %s conflict on %s", conflict.Provider.DisplayName(), conflict.Type, conflictSubject(conflict))
	}

	conflict.Status = resolution
	conflict.ResolvedAt = timePtr(e.now())
	e.conflicts[idx] = conflict

	e.auditLocked(ctx, conflict.Workspace, conflict.Provider, "conflict.resolved", message, intPtr(delta))
	e.persistLocked()
	metrics.RecordConflictResolution(string(resolution))
	return conflict, nil
}

// acceptRemoteLocked writes the remote units into the catalog and returns the signed delta
func (e *Engine) acceptRemoteLocked(ctx context.Context, conflict models.Conflict) (int, error) {
	scope, err := e.catalog.ListItems(ctx, conflict.Workspace)
	if err != nil {
		return 0, fmt.Errorf("failed to list items for backup: %w", err)
	}
	if err := e.backup.CreateGuardedBackupIfNeeded(ctx, "conflict.accept_remote", scope, e.backupCooldown); err != nil {
		return 0, fmt.Errorf("backup before accepting remote value failed: %w", err)
	}

	var item models.Item
	var delta int
	if conflict.Type == models.ConflictMissingLocalItem {
		item, err = e.catalog.CreateItem(ctx, models.Item{
			Workspace: conflict.Workspace,
			Name:      conflict.RemoteName,
			Barcode:   conflict.ExternalRef,
			OnHand:    conflict.RemoteUnits,
		})
		if err != nil {
			return 0, fmt.Errorf("failed to create item: %w", err)
		}
		delta = conflict.RemoteUnits
	} else {
		current, err := e.catalog.GetItem(ctx, conflict.Workspace, conflict.ItemID)
		if err != nil {
			return 0, fmt.Errorf("failed to load item %s: %w", conflict.ItemID, err)
		}
		item, err = e.catalog.ApplyTotalUnits(ctx, current, conflict.RemoteUnits)
		if err != nil {
			return 0, fmt.Errorf("failed to apply remote units: %w", err)
		}
		delta = conflict.RemoteUnits - current.OnHand
	}

	e.appendLedgerLocked(models.LedgerEvent{
		Workspace:      conflict.Workspace,
		Actor:          appctx.GetActor(ctx),
		EventType:      models.LedgerCountCorrection,
		Source:         "integration." + string(conflict.Provider),
		Reason:         fmt.Sprintf("Accepted %s value for %s", conflict.Provider.DisplayName(), conflict.Type),
		ItemID:         item.ID,
		ItemName:       item.Name,
		Category:       item.Category,
		Location:       item.Location,
		DeltaUnits:     delta,
		ResultingUnits: item.OnHand,
		CorrelationID:  conflict.ID.String(),
	})
	return delta, nil
}

func conflictSubject(c models.Conflict) string {
	switch {
	case c.RemoteName != "":
		return c.RemoteName
	case c.ExternalRef != "":
		return c.ExternalRef
	default:
		return c.ItemID
	}
}
