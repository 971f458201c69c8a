// Package engine owns every connection, sync job, retry, webhook event,
// conflict, ledger event and audit record. One mutex serializes all reads and
// writes; callers always receive copies. Outbound side effects (event
// publishing, dead letters) are queued while locked and run after unlock.
package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Gobusters/ectolinq"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/catalog"
	appctx "github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/credentials"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/secrets"
	"github.com/Ramsey-B/fern/pkg/state"
)

const (
	// SampleSize bounds the items compared in one sync pass
	SampleSize = 36

	// MaxSyntheticEventsPerPass bounds the webhook events a sync pass emits
	MaxSyntheticEventsPerPass = 14

	// RemoteOnlyThreshold is the item count at which a sync reports a remote-only record
	RemoteOnlyThreshold = 10

	// DefaultBackupCooldown throttles guarded backups per scope
	DefaultBackupCooldown = 10 * time.Minute
)

// Limits caps the retained history per collection. Zero means the default.
type Limits struct {
	SyncJobs      int
	RetryJobs     int
	WebhookEvents int
	LedgerEvents  int
	AuditEvents   int
}

// DefaultLimits are the retention caps used when Options.Limits leaves a field zero
var DefaultLimits = Limits{
	SyncJobs:      50,
	RetryJobs:     200,
	WebhookEvents: 500,
	LedgerEvents:  5000,
	AuditEvents:   500,
}

func (l Limits) withDefaults() Limits {
	if l.SyncJobs <= 0 {
		l.SyncJobs = DefaultLimits.SyncJobs
	}
	if l.RetryJobs <= 0 {
		l.RetryJobs = DefaultLimits.RetryJobs
	}
	if l.WebhookEvents <= 0 {
		l.WebhookEvents = DefaultLimits.WebhookEvents
	}
	if l.LedgerEvents <= 0 {
		l.LedgerEvents = DefaultLimits.LedgerEvents
	}
	if l.AuditEvents <= 0 {
		l.AuditEvents = DefaultLimits.AuditEvents
	}
	return l
}

// SecretStore is the credential vault the engine writes through
type SecretStore interface {
	Set(ctx context.Context, key secrets.Key, value string) error
	Get(ctx context.Context, key secrets.Key) (string, bool, error)
	Exists(ctx context.Context, key secrets.Key) bool
	Remove(ctx context.Context, key secrets.Key) error
}

// Publisher receives audit and sync-job records after they are committed
type Publisher interface {
	PublishAudit(ctx context.Context, event models.AuditEvent) error
	PublishSyncJob(ctx context.Context, job models.SyncJob) error
}

// DeadLetterSink receives retry jobs that ran out of attempts
type DeadLetterSink interface {
	PushAbandoned(ctx context.Context, job models.SyncRetryJob) error
}

// Persister is notified after every mutation
type Persister interface {
	Schedule()
}

type Options struct {
	Secrets        SecretStore
	Catalog        catalog.Catalog
	Backup         catalog.BackupHook
	Publisher      Publisher
	DeadLetters    DeadLetterSink
	Issuer         credentials.Issuer
	Drift          DriftModel
	Now            func() time.Time
	Logger         ectologger.Logger
	Limits         Limits
	BackupCooldown time.Duration
}

type connKey struct {
	workspace string
	provider  models.Provider
}

type effect func(ctx context.Context)

type Engine struct {
	secrets        SecretStore
	catalog        catalog.Catalog
	backup         catalog.BackupHook
	publisher      Publisher
	deadLetters    DeadLetterSink
	issuer         credentials.Issuer
	drift          DriftModel
	now            func() time.Time
	logger         ectologger.Logger
	limits         Limits
	backupCooldown time.Duration

	mu            sync.Mutex
	connections   map[connKey]*models.Connection
	syncJobs      []models.SyncJob
	retryJobs     []models.SyncRetryJob
	webhookEvents []models.WebhookEvent
	conflicts     []models.Conflict
	ledgerEvents  []models.LedgerEvent
	auditEvents   []models.AuditEvent
	outbox        []effect
	persister     Persister
}

// New creates an engine with empty state. Secrets, Catalog and Logger are required.
func New(opts Options) *Engine {
	e := &Engine{
		secrets:        opts.Secrets,
		catalog:        opts.Catalog,
		backup:         opts.Backup,
		publisher:      opts.Publisher,
		deadLetters:    opts.DeadLetters,
		issuer:         opts.Issuer,
		drift:          opts.Drift,
		now:            opts.Now,
		logger:         opts.Logger,
		limits:         opts.Limits.withDefaults(),
		backupCooldown: opts.BackupCooldown,
		connections:    map[connKey]*models.Connection{},
	}
	if e.backup == nil {
		e.backup = catalog.NoopBackup{}
	}
	if e.issuer == nil {
		e.issuer = credentials.SyntheticIssuer{}
	}
	if e.drift == nil {
		e.drift = Drift{}
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.backupCooldown <= 0 {
		e.backupCooldown = DefaultBackupCooldown
	}
	return e
}

// SetPersister attaches the write-behind persister. Its source may call Snapshot.
func (e *Engine) SetPersister(p Persister) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.persister = p
}

// Snapshot returns a deep copy of all engine state
func (e *Engine) Snapshot() *state.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	snapshot := state.Empty()
	snapshot.Connections = e.sortedConnectionsLocked()
	snapshot.SyncJobs = cloneSlice(e.syncJobs)
	snapshot.RetryJobs = cloneSlice(e.retryJobs)
	snapshot.WebhookEvents = cloneSlice(e.webhookEvents)
	snapshot.Conflicts = cloneSlice(e.conflicts)
	snapshot.LedgerEvents = cloneSlice(e.ledgerEvents)
	snapshot.AuditEvents = cloneSlice(e.auditEvents)
	return snapshot
}

// Restore replaces engine state with snapshot. It does not schedule a save.
func (e *Engine) Restore(snapshot *state.Snapshot) {
	if snapshot == nil {
		snapshot = state.Empty()
	}
	copied := *snapshot

	e.mu.Lock()
	defer e.mu.Unlock()

	e.connections = map[connKey]*models.Connection{}
	for i := range copied.Connections {
		conn := copied.Connections[i]
		if conn.Workspace == "" {
			conn.Workspace = models.AllWorkspaces
		}
		e.connections[connKey{conn.Workspace, conn.Provider}] = &conn
	}
	e.syncJobs = cloneSlice(copied.SyncJobs)
	e.retryJobs = cloneSlice(copied.RetryJobs)
	e.webhookEvents = cloneSlice(copied.WebhookEvents)
	e.conflicts = cloneSlice(copied.Conflicts)
	e.ledgerEvents = cloneSlice(copied.LedgerEvents)
	e.auditEvents = cloneSlice(copied.AuditEvents)
}

// unlockAndFlush releases the engine lock and then runs queued side effects
func (e *Engine) unlockAndFlush(ctx context.Context) {
	effects := e.outbox
	e.outbox = nil
	e.mu.Unlock()

	for _, fn := range effects {
		fn(ctx)
	}
}

func (e *Engine) enqueueEffect(fn effect) {
	e.outbox = append(e.outbox, fn)
}

func (e *Engine) persistLocked() {
	if e.persister != nil {
		e.persister.Schedule()
	}
}

func (e *Engine) auditLocked(ctx context.Context, workspace string, provider models.Provider, action, message string, delta *int) {
	event := models.AuditEvent{
		ID:        uuid.New(),
		Workspace: workspace,
		Provider:  provider,
		Action:    action,
		Message:   message,
		Actor:     appctx.GetActor(ctx),
		Delta:     delta,
		CreatedAt: e.now(),
	}
	e.auditEvents = prepend(e.auditEvents, event, e.limits.AuditEvents)

	if e.publisher != nil {
		e.enqueueEffect(func(ctx context.Context) {
			if err := e.publisher.PublishAudit(ctx, event); err != nil {
				e.logger.WithContext(ctx).WithError(err).Warnf("failed to publish audit event %s", event.Action)
			}
		})
	}
}

func (e *Engine) publishSyncJobLocked(job models.SyncJob) {
	if e.publisher == nil {
		return
	}
	e.enqueueEffect(func(ctx context.Context) {
		if err := e.publisher.PublishSyncJob(ctx, job); err != nil {
			e.logger.WithContext(ctx).WithError(err).Warnf("failed to publish sync job %s", job.ID)
		}
	})
}

func (e *Engine) sortedConnectionsLocked() []models.Connection {
	conns := make([]models.Connection, 0, len(e.connections))
	for _, conn := range e.connections {
		conns = append(conns, copyConnection(*conn))
	}
	sort.Slice(conns, func(i, j int) bool {
		if conns[i].Workspace != conns[j].Workspace {
			return conns[i].Workspace < conns[j].Workspace
		}
		return providerRank(conns[i].Provider) < providerRank(conns[j].Provider)
	})
	return conns
}

func providerRank(p models.Provider) int {
	if idx := ectolinq.FindIndex(models.Providers, p); idx >= 0 {
		return idx
	}
	return len(models.Providers)
}

func normalizeWorkspace(workspace string) string {
	if workspace == "" {
		return models.AllWorkspaces
	}
	return workspace
}

// prepend inserts v at the front of a newest-first list and trims it to limit
func prepend[T any](list []T, v T, limit int) []T {
	list = append([]T{v}, list...)
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list
}

func timePtr(t time.Time) *time.Time {
	return &t
}

func intPtr(n int) *int {
	return &n
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	return timePtr(*t)
}

func copyConnection(c models.Connection) models.Connection {
	c.LastSyncAt = copyTime(c.LastSyncAt)
	c.TokenExpiresAt = copyTime(c.TokenExpiresAt)
	c.LastRefreshedAt = copyTime(c.LastRefreshedAt)
	return c
}

// cloneSlice copies a record list. Pointer fields inside records are never
// mutated in place (they are replaced), so sharing them with a copy is safe.
func cloneSlice[T any](in []T) []T {
	if in == nil {
		return nil
	}
	return append([]T(nil), in...)
}
