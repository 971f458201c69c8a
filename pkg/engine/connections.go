package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Ramsey-B/fern/pkg/credentials"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/secrets"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// SaveCredentialsInput is an operator-supplied credential set. Empty secrets are left untouched.
type SaveCredentialsInput struct {
	Provider      models.Provider
	Workspace     string
	AccountLabel  string
	AccessToken   string
	RefreshToken  string
	WebhookSecret string
}

// SaveCredentials stores the supplied secrets and upserts the connection
func (e *Engine) SaveCredentials(ctx context.Context, input SaveCredentialsInput) (models.Connection, error) {
	ctx, span := tracing.StartSpan(ctx, "Engine.SaveCredentials")
	defer span.End()

	workspace := normalizeWorkspace(strings.TrimSpace(input.Workspace))
	label := strings.TrimSpace(input.AccountLabel)
	provided := map[models.SecretKind]string{
		models.SecretAccessToken:   strings.TrimSpace(input.AccessToken),
		models.SecretRefreshToken:  strings.TrimSpace(input.RefreshToken),
		models.SecretWebhookSecret: strings.TrimSpace(input.WebhookSecret),
	}

	e.mu.Lock()
	defer e.unlockAndFlush(ctx)

	if label == "" {
		return models.Connection{}, ErrAccountLabelRequired
	}

	accessKey := secrets.NewKey(workspace, input.Provider, models.SecretAccessToken)
	if provided[models.SecretAccessToken] == "" && !e.secrets.Exists(ctx, accessKey) {
		return models.Connection{}, ErrCredentialMissing
	}

	if err := e.writeSecretsLocked(ctx, workspace, input.Provider, provided); err != nil {
		return models.Connection{}, err
	}

	now := e.now()
	key := connKey{workspace, input.Provider}
	conn := models.Connection{
		Workspace:   workspace,
		Provider:    input.Provider,
		ConnectedAt: now,
	}
	if existing, ok := e.connections[key]; ok {
		conn = copyConnection(*existing)
	}
	conn.AccountLabel = label
	conn.Status = models.ConnectionStatusConnected
	if provided[models.SecretAccessToken] != "" {
		conn.TokenExpiresAt = timePtr(now.Add(credentials.AccessTokenLifetime))
	}
	e.rederiveLocked(ctx, &conn)
	e.connections[key] = &conn

	e.auditLocked(ctx, workspace, input.Provider, "connection.saved",
		fmt.Sprintf("Saved %s credentials for %s", input.Provider.DisplayName(), label), nil)
	e.persistLocked()

	e.logger.WithContext(ctx).WithFields(map[string]any{
		"workspace": workspace,
		"provider":  input.Provider,
		"status":    conn.Status,
	}).Info("saved connection credentials")

	return copyConnection(conn), nil
}

// secretSnapshot is a secret's value before a save overwrote it
type secretSnapshot struct {
	key    secrets.Key
	value  string
	exists bool
}

// writeSecretsLocked stores every non-empty provided secret. When a write fails
// the secrets already written are restored to their earlier values, so a failed
// save leaves the vault as it was.
func (e *Engine) writeSecretsLocked(ctx context.Context, workspace string, provider models.Provider, provided map[models.SecretKind]string) error {
	written := make([]secretSnapshot, 0, len(models.SecretKinds))
	for _, kind := range models.SecretKinds {
		value := provided[kind]
		if value == "" {
			continue
		}
		key := secrets.NewKey(workspace, provider, kind)
		// an unreadable prior value counts as absent, as it does for Exists
		prior, exists, err := e.secrets.Get(ctx, key)
		if err != nil {
			prior, exists = "", false
		}
		if err := e.secrets.Set(ctx, key, value); err != nil {
			e.restoreSecretsLocked(ctx, written)
			return fmt.Errorf("%w: %w", ErrSecretWriteFailed, err)
		}
		written = append(written, secretSnapshot{key: key, value: prior, exists: exists})
	}
	return nil
}

func (e *Engine) restoreSecretsLocked(ctx context.Context, written []secretSnapshot) {
	for i := len(written) - 1; i >= 0; i-- {
		snap := written[i]
		var err error
		if snap.exists {
			err = e.secrets.Set(ctx, snap.key, snap.value)
		} else {
			err = e.secrets.Remove(ctx, snap.key)
		}
		if err != nil {
			e.logger.WithContext(ctx).WithError(err).Warnf("failed to restore %s secret for %s after a failed save", snap.key.Kind, snap.key.Provider)
		}
	}
}

// Refresh mints a new access token from the stored refresh token. Without a
// refresh token the connection is marked token_expired and ErrCredentialExpired is returned.
func (e *Engine) Refresh(ctx context.Context, provider models.Provider, workspace string) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "Engine.Refresh")
	defer span.End()

	e.mu.Lock()
	defer e.unlockAndFlush(ctx)

	conn, ok := e.connections[connKey{normalizeWorkspace(workspace), provider}]
	if !ok {
		return false, ErrCredentialMissing
	}
	if err := e.refreshLocked(ctx, conn); err != nil {
		return false, err
	}
	return true, nil
}

func (e *Engine) refreshLocked(ctx context.Context, conn *models.Connection) error {
	refreshKey := secrets.NewKey(conn.Workspace, conn.Provider, models.SecretRefreshToken)
	if !e.secrets.Exists(ctx, refreshKey) {
		e.rederiveLocked(ctx, conn)
		conn.Status = models.ConnectionStatusTokenExpired
		e.persistLocked()
		metrics.RecordTokenRefresh(string(conn.Provider), "no_refresh_token")
		return ErrCredentialExpired
	}

	now := e.now()
	token := e.issuer.Issue(conn.Provider, now)
	accessKey := secrets.NewKey(conn.Workspace, conn.Provider, models.SecretAccessToken)
	if err := e.secrets.Set(ctx, accessKey, token.Value); err != nil {
		metrics.RecordTokenRefresh(string(conn.Provider), "failed")
		return fmt.Errorf("%w: %w", ErrSecretWriteFailed, err)
	}

	conn.TokenExpiresAt = timePtr(token.ExpiresAt)
	conn.LastRefreshedAt = timePtr(now)
	conn.Status = models.ConnectionStatusConnected
	e.rederiveLocked(ctx, conn)

	e.auditLocked(ctx, conn.Workspace, conn.Provider, "connection.refreshed",
		fmt.Sprintf("Refreshed %s access token", conn.Provider.DisplayName()), nil)
	e.persistLocked()
	metrics.RecordTokenRefresh(string(conn.Provider), "success")
	return nil
}

// Disconnect purges every secret for the pairing and forgets the connection.
// It reports false, without auditing, when no connection existed. A failed
// purge leaves the connection in place so the operator can retry.
func (e *Engine) Disconnect(ctx context.Context, provider models.Provider, workspace string) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "Engine.Disconnect")
	defer span.End()

	workspace = normalizeWorkspace(workspace)
	key := connKey{workspace, provider}

	e.mu.Lock()
	defer e.unlockAndFlush(ctx)

	if _, ok := e.connections[key]; !ok {
		return false, nil
	}
	for _, kind := range models.SecretKinds {
		if err := e.secrets.Remove(ctx, secrets.NewKey(workspace, provider, kind)); err != nil {
			return false, fmt.Errorf("failed to purge %s: %w", kind, err)
		}
	}
	delete(e.connections, key)

	e.auditLocked(ctx, workspace, provider, "connection.disconnected",
		fmt.Sprintf("Disconnected %s", provider.DisplayName()), nil)
	e.persistLocked()
	return true, nil
}

// Connections lists the workspace's connections with status derived at read time
func (e *Engine) Connections(workspace string) []models.Connection {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	conns := make([]models.Connection, 0)
	for _, conn := range e.sortedConnectionsLocked() {
		if conn.Workspace != workspace {
			continue
		}
		conns = append(conns, withDerivedStatus(conn, now))
	}
	return conns
}

// Connection returns one pairing's connection
func (e *Engine) Connection(provider models.Provider, workspace string) (models.Connection, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	conn, ok := e.connections[connKey{normalizeWorkspace(workspace), provider}]
	if !ok {
		return models.Connection{}, false
	}
	return withDerivedStatus(copyConnection(*conn), e.now()), true
}

// withDerivedStatus downgrades a connected record whose token has lapsed. Other
// statuses only change through a save, refresh or sync.
func withDerivedStatus(conn models.Connection, now time.Time) models.Connection {
	if conn.Status != models.ConnectionStatusConnected {
		return conn
	}
	conn.Status = credentials.EffectiveStatus(conn.Status, conn.TokenExpiresAt, conn.AccessToken == models.SecretPresent, now).Status()
	return conn
}

// rederiveLocked refreshes secret presence from the store and recomputes the status
func (e *Engine) rederiveLocked(ctx context.Context, conn *models.Connection) {
	conn.AccessToken = models.PresenceOf(e.secrets.Exists(ctx, secrets.NewKey(conn.Workspace, conn.Provider, models.SecretAccessToken)))
	conn.RefreshToken = models.PresenceOf(e.secrets.Exists(ctx, secrets.NewKey(conn.Workspace, conn.Provider, models.SecretRefreshToken)))
	conn.WebhookSecret = models.PresenceOf(e.secrets.Exists(ctx, secrets.NewKey(conn.Workspace, conn.Provider, models.SecretWebhookSecret)))
	conn.Status = credentials.EffectiveStatus(conn.Status, conn.TokenExpiresAt, conn.AccessToken == models.SecretPresent, e.now()).Status()
}

// prepareConnectionLocked makes sure the pairing holds a usable access token,
// refreshing it when it is missing, expired or inside the proactive window.
func (e *Engine) prepareConnectionLocked(ctx context.Context, provider models.Provider, workspace string) error {
	conn, ok := e.connections[connKey{workspace, provider}]
	if !ok {
		return ErrCredentialMissing
	}

	now := e.now()
	hasAccess := e.secrets.Exists(ctx, secrets.NewKey(workspace, provider, models.SecretAccessToken))
	if hasAccess && !credentials.NeedsRefresh(conn.TokenExpiresAt, now, credentials.ProactiveRefreshWindow) {
		return e.usableLocked(ctx, conn)
	}

	if e.secrets.Exists(ctx, secrets.NewKey(workspace, provider, models.SecretRefreshToken)) {
		return e.refreshLocked(ctx, conn)
	}

	if !hasAccess {
		e.rederiveLocked(ctx, conn)
		conn.Status = models.ConnectionStatusTokenExpired
		e.persistLocked()
		return ErrCredentialMissing
	}
	if credentials.IsExpired(conn.TokenExpiresAt, now) {
		e.rederiveLocked(ctx, conn)
		conn.Status = models.ConnectionStatusTokenExpired
		e.persistLocked()
		return ErrCredentialExpired
	}

	// inside the refresh window but still valid
	return e.usableLocked(ctx, conn)
}

func (e *Engine) usableLocked(ctx context.Context, conn *models.Connection) error {
	before := conn.Status
	e.rederiveLocked(ctx, conn)
	if conn.Status != before {
		e.persistLocked()
	}
	if conn.Status != models.ConnectionStatusConnected {
		return ErrCredentialExpired
	}
	return nil
}
