//go:build integration

package server

import (
	"context"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Ramsey-B/fern/pkg/engine"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/secrets"
)

func startContainer(t *testing.T, req testcontainers.ContainerRequest, port string) (string, int) {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	mapped, err := container.MappedPort(ctx, port)
	require.NoError(t, err)
	portNum, err := strconv.Atoi(mapped.Port())
	require.NoError(t, err)
	return host, portNum
}

// Postgres state with Redis secrets, dead letters and locks
func TestNewApp_PostgresAndRedis(t *testing.T) {
	pgHost, pgPort := startContainer(t, testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "user",
			"POSTGRES_PASSWORD": "password",
			"POSTGRES_DB":       "fern",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}, "5432")
	redisHost, redisPort := startContainer(t, testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor: wait.ForLog("Ready to accept connections").
			WithStartupTimeout(60 * time.Second),
	}, "6379")

	cfg := testConfig(t)
	cfg.StartupMaxAttempts = 5
	cfg.StateDSN = fmt.Sprintf("postgres://user:password@%s:%d/fern?sslmode=disable", pgHost, pgPort)
	cfg.StateMigrationsPath = "../../db/pg"
	cfg.RedisEnabled = true
	cfg.RedisHost = redisHost
	cfg.RedisPort = redisPort
	cfg.SecretsBackend = "redis"

	ctx := context.Background()
	app, err := NewApp(ctx, cfg, getTestLogger())
	require.NoError(t, err)
	require.NotNil(t, app.Redis)
	require.NotNil(t, app.DeadLetters)

	_, err = app.Engine.SaveCredentials(ctx, engine.SaveCredentialsInput{
		Provider:     models.ProviderShopify,
		Workspace:    "shop",
		AccountLabel: "Main store",
		AccessToken:  "at-1",
		RefreshToken: "rt-1",
	})
	require.NoError(t, err)
	require.NoError(t, app.Close(ctx))

	restarted, err := NewApp(ctx, cfg, getTestLogger())
	require.NoError(t, err)
	defer restarted.Close(ctx)

	conn, ok := restarted.Engine.Connection(models.ProviderShopify, "shop")
	require.True(t, ok)
	assert.Equal(t, "Main store", conn.AccountLabel)
	assert.Equal(t, models.SecretPresent, conn.RefreshToken)

	token, found, err := restarted.Secrets.Get(ctx, secrets.NewKey("shop", models.ProviderShopify, models.SecretAccessToken))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "at-1", token)

	count, err := restarted.DeadLetters.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}
