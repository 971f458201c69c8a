package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/pkg/engine"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/secrets"
)

func getTestLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		AppName:            "fern-test",
		StartupMaxAttempts: 1,
		ShutdownTimeout:    5 * time.Second,
		StateDSN:           filepath.Join(dir, "state.json"),
		StateDebounce:      10 * time.Millisecond,
		SecretsBackend:     "file",
		SecretsPath:        filepath.Join(dir, "secrets.json"),
		SecretsMasterKey:   "test-master-key",
		AllowOrigins:       []string{"*"},
		AllowMethods:       []string{"GET", "POST", "PUT", "DELETE"},
	}
}

func TestNewApp_StateSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	app, err := NewApp(ctx, cfg, getTestLogger())
	require.NoError(t, err)

	_, err = app.Engine.SaveCredentials(ctx, engine.SaveCredentialsInput{
		Provider:     models.ProviderSquare,
		Workspace:    "ws-1",
		AccountLabel: "Front counter",
		AccessToken:  "at-1",
	})
	require.NoError(t, err)
	require.NoError(t, app.Close(ctx))

	restarted, err := NewApp(ctx, cfg, getTestLogger())
	require.NoError(t, err)
	defer restarted.Close(ctx)

	conn, ok := restarted.Engine.Connection(models.ProviderSquare, "ws-1")
	require.True(t, ok)
	assert.Equal(t, "Front counter", conn.AccountLabel)
	assert.True(t, restarted.Secrets.Exists(ctx, secrets.NewKey("ws-1", models.ProviderSquare, models.SecretAccessToken)))
}

func TestNewApp_RequiresMasterKeyForFileSecrets(t *testing.T) {
	cfg := testConfig(t)
	cfg.SecretsMasterKey = ""

	_, err := NewApp(context.Background(), cfg, getTestLogger())
	require.Error(t, err)
	assert.ErrorIs(t, err, secrets.ErrMasterKeyRequired)
}

func TestNewApp_MemorySecretsWithoutKey(t *testing.T) {
	cfg := testConfig(t)
	cfg.SecretsBackend = "memory"
	cfg.SecretsMasterKey = ""
	cfg.StateDSN = "memory://"

	app, err := NewApp(context.Background(), cfg, getTestLogger())
	require.NoError(t, err)
	assert.NoError(t, app.Close(context.Background()))
}

func TestNewApp_CatalogSeed(t *testing.T) {
	cfg := testConfig(t)
	cfg.CatalogSeedPath = filepath.Join("testdata", "catalog.yaml")

	app, err := NewApp(context.Background(), cfg, getTestLogger())
	require.NoError(t, err)
	defer app.Close(context.Background())

	items, err := app.Catalog.ListItems(context.Background(), models.AllWorkspaces)
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestServerRoutes(t *testing.T) {
	app, err := NewApp(context.Background(), testConfig(t), getTestLogger())
	require.NoError(t, err)
	defer app.Close(context.Background())

	handler := New(app, nil).Handler()

	tests := []struct {
		path string
		want int
	}{
		{"/api/v1/health", http.StatusOK},
		{"/api/v1/health/live", http.StatusOK},
		{"/api/v1/health/ready", http.StatusServiceUnavailable},
		{"/api/v1/connections", http.StatusOK},
		{"/api/v1/retries/abandoned", http.StatusOK},
		{"/metrics", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.want, rec.Code)
		})
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.True(t, strings.Contains(rec.Body.String(), "go_goroutines"))
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger("debug", true)
	require.NoError(t, err)
	assert.NotNil(t, logger)

	_, err = NewLogger("loud", false)
	assert.Error(t, err)
}
