package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Gobusters/ectolinq"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const (
	// RetryInitialDelay is how long a freshly queued retry waits
	RetryInitialDelay = 90 * time.Second

	// RetryMaxAttempts is the attempt budget of a new retry job
	RetryMaxAttempts = 5

	// DefaultRetryBatch is used when ProcessDueRetries is given no positive max
	DefaultRetryBatch = 10

	maxBackoffMinutes = 60
)

// Backoff returns the delay before the next attempt after attempts failures:
// 2^n minutes with n clamped to 1..8, capped at 60 minutes.
func Backoff(attempts int) time.Duration {
	n := min(max(attempts, 1), 8)
	minutes := min(1<<n, maxBackoffMinutes)
	return time.Duration(minutes) * time.Minute
}

// RetryRunResult summarizes one ProcessDueRetries pass
type RetryRunResult struct {
	Attempted int                   `json:"attempted"`
	Resolved  int                   `json:"resolved"`
	Requeued  int                   `json:"requeued"`
	Abandoned int                   `json:"abandoned"`
	Jobs      []models.SyncRetryJob `json:"jobs"`
}

func (r *RetryRunResult) add(other RetryRunResult) {
	r.Attempted += other.Attempted
	r.Resolved += other.Resolved
	r.Requeued += other.Requeued
	r.Abandoned += other.Abandoned
	r.Jobs = append(r.Jobs, other.Jobs...)
}

// RetryJobs lists the workspace's retry jobs, newest first
func (e *Engine) RetryJobs(workspace string) []models.SyncRetryJob {
	e.mu.Lock()
	defer e.mu.Unlock()

	jobs := filterWorkspace(e.retryJobs, workspace, func(j models.SyncRetryJob) string { return j.Workspace })
	sort.SliceStable(jobs, func(i, j int) bool { return jobs[i].CreatedAt.After(jobs[j].CreatedAt) })
	return jobs
}

// enqueueRetryLocked keeps exactly one queued job per pairing. An existing job
// records the new error and keeps the earlier of its next attempt and now+90s.
func (e *Engine) enqueueRetryLocked(provider models.Provider, workspace, lastError string) {
	now := e.now()
	next := now.Add(RetryInitialDelay)

	for i := range e.retryJobs {
		job := &e.retryJobs[i]
		if job.Provider != provider || job.Workspace != workspace || job.Status != models.SyncRetryStatusQueued {
			continue
		}
		job.LastError = lastError
		job.UpdatedAt = now
		if next.Before(job.NextAttemptAt) {
			job.NextAttemptAt = next
		}
		return
	}

	e.retryJobs = append(e.retryJobs, models.SyncRetryJob{
		ID:            uuid.New(),
		Provider:      provider,
		Workspace:     workspace,
		CreatedAt:     now,
		UpdatedAt:     now,
		MaxAttempts:   RetryMaxAttempts,
		NextAttemptAt: next,
		Status:        models.SyncRetryStatusQueued,
		LastError:     lastError,
	})
	e.pruneRetriesLocked()
	metrics.RecordRetry(string(provider), "queued")
}

// pruneRetriesLocked drops the oldest terminal jobs once the cap is exceeded. Queued jobs are always kept.
func (e *Engine) pruneRetriesLocked() {
	excess := len(e.retryJobs) - e.limits.RetryJobs
	if excess <= 0 {
		return
	}
	kept := e.retryJobs[:0]
	for _, job := range e.retryJobs {
		if excess > 0 && job.Status != models.SyncRetryStatusQueued {
			excess--
			continue
		}
		kept = append(kept, job)
	}
	e.retryJobs = kept
}

func (e *Engine) resolveQueuedRetriesLocked(provider models.Provider, workspace string) {
	now := e.now()
	for i := range e.retryJobs {
		job := &e.retryJobs[i]
		if job.Provider == provider && job.Workspace == workspace && job.Status == models.SyncRetryStatusQueued {
			job.Status = models.SyncRetryStatusResolved
			job.UpdatedAt = now
			job.LastError = ""
			metrics.RecordRetry(string(provider), "resolved")
		}
	}
}

func (e *Engine) retryIndexLocked(id uuid.UUID) int {
	return ectolinq.FindIndexWhere(e.retryJobs, func(job models.SyncRetryJob) bool { return job.ID == id })
}

// ProcessDueRetries runs the workspace's due queued retries, soonest first, up to limit
func (e *Engine) ProcessDueRetries(ctx context.Context, workspace string, limit int) RetryRunResult {
	ctx, span := tracing.StartSpan(ctx, "Engine.ProcessDueRetries")
	defer span.End()

	e.mu.Lock()
	defer e.unlockAndFlush(ctx)

	return e.processDueRetriesLocked(ctx, normalizeWorkspace(workspace), limit)
}

// ProcessAllDueRetries runs due retries for every workspace that has any, sharing limit across them
func (e *Engine) ProcessAllDueRetries(ctx context.Context, limit int) RetryRunResult {
	ctx, span := tracing.StartSpan(ctx, "Engine.ProcessAllDueRetries")
	defer span.End()

	if limit <= 0 {
		limit = DefaultRetryBatch
	}

	e.mu.Lock()
	defer e.unlockAndFlush(ctx)

	workspaces := make([]string, 0)
	seen := map[string]bool{}
	for _, job := range e.dueRetriesLocked("", e.now()) {
		if !seen[job.Workspace] {
			seen[job.Workspace] = true
			workspaces = append(workspaces, job.Workspace)
		}
	}

	var result RetryRunResult
	for _, ws := range workspaces {
		remaining := limit - result.Attempted
		if remaining <= 0 {
			break
		}
		result.add(e.processDueRetriesLocked(ctx, ws, remaining))
	}
	return result
}

// dueRetriesLocked returns copies of queued jobs due at now, soonest first. An empty workspace matches all.
func (e *Engine) dueRetriesLocked(workspace string, now time.Time) []models.SyncRetryJob {
	due := make([]models.SyncRetryJob, 0)
	for _, job := range e.retryJobs {
		if job.Status != models.SyncRetryStatusQueued || job.NextAttemptAt.After(now) {
			continue
		}
		if workspace != "" && job.Workspace != workspace {
			continue
		}
		due = append(due, job)
	}
	sort.SliceStable(due, func(i, j int) bool { return due[i].NextAttemptAt.Before(due[j].NextAttemptAt) })
	return due
}

func (e *Engine) processDueRetriesLocked(ctx context.Context, workspace string, limit int) RetryRunResult {
	if limit <= 0 {
		limit = DefaultRetryBatch
	}

	result := RetryRunResult{Jobs: make([]models.SyncRetryJob, 0)}
	due := e.dueRetriesLocked(workspace, e.now())
	if len(due) > limit {
		due = due[:limit]
	}

	for _, candidate := range due {
		idx := e.retryIndexLocked(candidate.ID)
		if idx < 0 || e.retryJobs[idx].Status != models.SyncRetryStatusQueued {
			continue
		}
		e.retryJobs[idx].AttemptCount++
		e.retryJobs[idx].UpdatedAt = e.now()
		result.Attempted++

		job, ok := e.runSyncLocked(ctx, candidate.Provider, candidate.Workspace, e.itemsLocked(ctx, candidate.Workspace), false)

		// the sync may have rewritten the retry list
		idx = e.retryIndexLocked(candidate.ID)
		if idx < 0 {
			continue
		}
		retry := &e.retryJobs[idx]
		now := e.now()
		retry.UpdatedAt = now

		switch {
		case ok:
			retry.Status = models.SyncRetryStatusResolved
			retry.LastError = ""
			result.Resolved++
		case retry.AttemptCount >= retry.MaxAttempts:
			retry.Status = models.SyncRetryStatusAbandoned
			retry.LastError = job.Message
			result.Abandoned++
			e.abandonLocked(ctx, *retry)
		default:
			retry.LastError = job.Message
			retry.NextAttemptAt = now.Add(Backoff(retry.AttemptCount))
			result.Requeued++
			metrics.RecordRetry(string(retry.Provider), "requeued")
		}
		result.Jobs = append(result.Jobs, *retry)
	}

	if result.Attempted > 0 {
		e.persistLocked()
	}
	return result
}

func (e *Engine) abandonLocked(ctx context.Context, job models.SyncRetryJob) {
	metrics.RecordRetry(string(job.Provider), "abandoned")
	e.auditLocked(ctx, job.Workspace, job.Provider, "retry.abandoned",
		fmt.Sprintf("%s after %d attempts: %s", ErrRetryExhausted, job.AttemptCount, job.LastError), nil)

	if e.deadLetters == nil {
		return
	}
	e.enqueueEffect(func(ctx context.Context) {
		if err := e.deadLetters.PushAbandoned(ctx, job); err != nil {
			e.logger.WithContext(ctx).WithError(err).Warnf("failed to dead-letter retry job %s", job.ID)
			metrics.RecordDLQJob(string(job.Provider), "failed")
			return
		}
		metrics.RecordDLQJob(string(job.Provider), "pushed")
	})
}
