package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/pkg/engine"
	"github.com/Ramsey-B/fern/pkg/ledger"
	"github.com/Ramsey-B/fern/pkg/models"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		AppName:            "fern-test",
		LogLevel:           "info",
		StartupMaxAttempts: 1,
		ShutdownTimeout:    5 * time.Second,
		StateDSN:           filepath.Join(dir, "state.json"),
		StateDebounce:      10 * time.Millisecond,
		SecretsBackend:     "file",
		SecretsPath:        filepath.Join(dir, "secrets.json"),
		SecretsMasterKey:   "test-master-key",
	}
}

// run executes one command against cfg with a fresh command tree, like a
// separate process invocation.
func run(t *testing.T, cfg *config.Config, stdin string, args ...string) (string, error) {
	t.Helper()
	opts := &RootOptions{
		Config: cfg,
		Logger: ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}),
	}
	cmd := newRootCommand(opts)

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)

	err := cmd.Execute()
	return out.String(), err
}

func decode[T any](t *testing.T, out string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(out), &v), out)
	return v
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand(testConfig(t))
	assert.Equal(t, "fern", cmd.Use)

	commands := [][]string{
		{"serve"},
		{"connect"},
		{"disconnect"},
		{"refresh"},
		{"sync"},
		{"ingest"},
		{"retries", "process"},
		{"retries", "list"},
		{"ledger", "sync"},
		{"ledger", "export"},
		{"conflicts", "list"},
		{"conflicts", "resolve"},
	}
	for _, path := range commands {
		t.Run(strings.Join(path, " "), func(t *testing.T) {
			sub, _, err := cmd.Find(path)
			require.NoError(t, err)
			assert.Equal(t, path[len(path)-1], sub.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand(testConfig(t))

	verbose := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verbose)
	assert.Equal(t, "v", verbose.Shorthand)
	assert.Equal(t, "false", verbose.DefValue)

	format := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, format)
	assert.Equal(t, "text", format.DefValue)

	workspace := cmd.PersistentFlags().Lookup("workspace")
	require.NotNil(t, workspace)
	assert.Equal(t, models.AllWorkspaces, workspace.DefValue)
}

func TestInvalidFormat(t *testing.T) {
	_, err := run(t, testConfig(t), "", "--format", "xml", "conflicts", "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestUnknownProvider(t *testing.T) {
	_, err := run(t, testConfig(t), "", "sync", "etsy")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown provider")
}

func TestConnectSyncDisconnect(t *testing.T) {
	cfg := testConfig(t)

	out, err := run(t, cfg, "", "connect", "square", "--label", "Front counter", "--access-token", "at-1", "-w", "ws-1", "--format", "json")
	require.NoError(t, err)
	conn := decode[models.Connection](t, out)
	assert.Equal(t, models.ProviderSquare, conn.Provider)
	assert.Equal(t, models.ConnectionStatusConnected, conn.Status)
	assert.Equal(t, models.SecretPresent, conn.AccessToken)

	out, err = run(t, cfg, "", "sync", "square", "-w", "ws-1", "--format", "json")
	require.NoError(t, err)
	job := decode[models.SyncJob](t, out)
	assert.Equal(t, models.SyncJobStatusSuccess, job.Status)
	assert.Equal(t, "ws-1", job.Workspace)

	out, err = run(t, cfg, "", "disconnect", "square", "-w", "ws-1")
	require.NoError(t, err)
	assert.Contains(t, out, "Disconnected Square")

	_, err = run(t, cfg, "", "disconnect", "square", "-w", "ws-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not connected")
}

func TestConnectRequiresAccessToken(t *testing.T) {
	_, err := run(t, testConfig(t), "", "connect", "shopify", "--label", "Main")
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrCredentialMissing)
}

func TestRefreshWithoutConnection(t *testing.T) {
	_, err := run(t, testConfig(t), "", "refresh", "shopify", "-w", "ws-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrCredentialMissing)
}

func TestBlockedSyncQueuesRetry(t *testing.T) {
	cfg := testConfig(t)

	out, err := run(t, cfg, "", "sync", "shopify", "-w", "ws-1", "--format", "json")
	require.NoError(t, err)
	job := decode[models.SyncJob](t, out)
	assert.Equal(t, models.SyncJobStatusFailed, job.Status)
	assert.Contains(t, job.Message, "blocked")

	out, err = run(t, cfg, "", "retries", "list", "-w", "ws-1", "--format", "json")
	require.NoError(t, err)
	jobs := decode[[]models.SyncRetryJob](t, out)
	require.Len(t, jobs, 1)
	assert.Equal(t, models.ProviderShopify, jobs[0].Provider)

	// the first attempt is not due yet
	out, err = run(t, cfg, "", "retries", "process", "-w", "ws-1", "--format", "json")
	require.NoError(t, err)
	result := decode[engine.RetryRunResult](t, out)
	assert.Equal(t, 0, result.Attempted)
}

func TestIngestAndResolveConflict(t *testing.T) {
	cfg := testConfig(t)

	out, err := run(t, cfg, "barcode=SKU9 qty=3 name=Gasket\n", "ingest", "square", "-w", "ws-1")
	require.NoError(t, err)
	assert.Contains(t, out, "Received 1 webhook event(s)")

	out, err = run(t, cfg, "", "conflicts", "list", "-w", "ws-1", "--status", "unresolved", "--format", "json")
	require.NoError(t, err)
	conflicts := decode[[]models.Conflict](t, out)
	require.Len(t, conflicts, 1)
	assert.Equal(t, models.ConflictMissingLocalItem, conflicts[0].Type)
	assert.Equal(t, 3, conflicts[0].RemoteUnits)

	out, err = run(t, cfg, "", "conflicts", "resolve", conflicts[0].ID.String(), "keep_local", "--format", "json")
	require.NoError(t, err)
	resolved := decode[models.Conflict](t, out)
	assert.Equal(t, models.ConflictKeepLocal, resolved.Status)

	_, err = run(t, cfg, "", "conflicts", "resolve", conflicts[0].ID.String(), "keep_local")
	assert.ErrorIs(t, err, engine.ErrConflictAlreadyResolved)
}

func TestIngestFromFile(t *testing.T) {
	cfg := testConfig(t)
	path := filepath.Join(t.TempDir(), "payload.txt")
	require.NoError(t, os.WriteFile(path, []byte("barcode=A1 qty=1\nbarcode=A2 qty=2\n"), 0o600))

	out, err := run(t, cfg, "", "ingest", "shopify", "--file", path, "--format", "json")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"received": 2}, decode[map[string]int](t, out))
}

func TestConflictsValidation(t *testing.T) {
	cfg := testConfig(t)

	_, err := run(t, cfg, "", "conflicts", "list", "--status", "maybe")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid status")

	_, err = run(t, cfg, "", "conflicts", "resolve", "not-a-uuid", "keep_local")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid conflict id")
}

func TestLedgerCommands(t *testing.T) {
	cfg := testConfig(t)

	out, err := run(t, cfg, "", "ledger", "sync", "-w", "ws-1", "--format", "json")
	require.NoError(t, err)
	result := decode[engine.LedgerSyncResult](t, out)
	assert.Equal(t, 0, result.Attempted)

	out, err = run(t, cfg, "", "ledger", "export", "-w", "ws-1")
	require.NoError(t, err)
	assert.Equal(t, strings.Join(ledger.Columns, ","), strings.TrimSpace(out))
}
