package server

import (
	"context"
	"crypto/rand"
	"fmt"
	"strings"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/pkg/catalog"
	"github.com/Ramsey-B/fern/pkg/engine"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/redis"
	"github.com/Ramsey-B/fern/pkg/secrets"
	"github.com/Ramsey-B/fern/pkg/startup"
	"github.com/Ramsey-B/fern/pkg/state"
)

// App holds the engine and the collaborators it was built from. Redis,
// DeadLetters and Producer are nil when their integration is disabled.
type App struct {
	Config      *config.Config
	Logger      ectologger.Logger
	Engine      *engine.Engine
	Persister   *state.Persister
	Secrets     *secrets.Store
	Catalog     *catalog.MemoryCatalog
	Redis       *redis.Client
	DeadLetters *redis.DeadLetterQueue
	Producer    *kafka.Producer

	backend  state.Backend
	snapshot *state.Snapshot
	startup  *startup.Startup
}

// NewApp connects every configured dependency, restores persisted state and
// wires the engine to its write-behind persister. Connection failures are
// retried with backoff up to StartupMaxAttempts.
func NewApp(ctx context.Context, cfg *config.Config, logger ectologger.Logger) (*App, error) {
	app := &App{
		Config:  cfg,
		Logger:  logger,
		startup: startup.NewStartup(logger, cfg.StartupMaxAttempts),
	}

	engineRequires := []string{"state", "secrets", "catalog"}
	secretsRequires := []string{}

	if cfg.RedisEnabled {
		app.startup.AddDependency(startup.Func{
			Name:    "redis",
			StartFn: app.startRedis,
			StopFn: func(context.Context) error {
				return app.Redis.Close()
			},
		})
		engineRequires = append(engineRequires, "redis")
		secretsRequires = append(secretsRequires, "redis")
	}

	if cfg.KafkaEnabled {
		app.startup.AddDependency(startup.Func{
			Name: "kafka-producer",
			StartFn: func(context.Context) error {
				app.Producer = kafka.NewProducer(cfg.Kafka(), logger)
				return nil
			},
			StopFn: func(context.Context) error {
				return app.Producer.Close()
			},
		})
		engineRequires = append(engineRequires, "kafka-producer")
	}

	app.startup.AddDependency(startup.Func{
		Name:     "secrets",
		Requires: secretsRequires,
		StartFn:  app.startSecrets,
	})
	app.startup.AddDependency(startup.Func{
		Name:    "state",
		StartFn: app.startState,
		StopFn: func(context.Context) error {
			return app.backend.Close()
		},
	})
	app.startup.AddDependency(startup.Func{
		Name:    "catalog",
		StartFn: app.startCatalog,
	})
	app.startup.AddDependency(startup.Func{
		Name:     "engine",
		Requires: engineRequires,
		StartFn:  app.startEngine,
		StopFn: func(ctx context.Context) error {
			return app.Persister.Close(ctx)
		},
	})

	if err := app.startup.Start(ctx); err != nil {
		_ = app.startup.Stop(ctx)
		return nil, err
	}
	return app, nil
}

// Close flushes pending state and releases every dependency in reverse order
func (a *App) Close(ctx context.Context) error {
	return a.startup.Stop(ctx)
}

// Flush saves pending state now
func (a *App) Flush(ctx context.Context) error {
	return a.Persister.Flush(ctx)
}

func (a *App) startRedis(context.Context) error {
	client, err := redis.NewClient(a.Config.Redis(), a.Logger)
	if err != nil {
		return err
	}
	a.Redis = client
	a.DeadLetters = redis.NewDeadLetterQueue(client, a.Config.RedisDLQStream, a.Logger)
	return nil
}

func (a *App) startSecrets(context.Context) error {
	backend, err := secrets.BuildBackend(a.Config.SecretsBackend, a.Config.SecretsPath, a.Redis)
	if err != nil {
		return err
	}

	masterKey := []byte(a.Config.SecretsMasterKey)
	if len(masterKey) == 0 {
		if !isMemoryBackend(a.Config.SecretsBackend) {
			return fmt.Errorf("SECRETS_MASTER_KEY is required for the %s secrets backend: %w", a.Config.SecretsBackend, secrets.ErrMasterKeyRequired)
		}
		// memory secrets die with the process, so an ephemeral key is enough
		masterKey = make([]byte, 32)
		if _, err := rand.Read(masterKey); err != nil {
			return fmt.Errorf("failed to generate ephemeral master key: %w", err)
		}
	}

	cipher, err := secrets.NewCipher(masterKey)
	if err != nil {
		return err
	}
	a.Secrets = secrets.NewStore(backend, cipher, a.Logger)
	return nil
}

func isMemoryBackend(kind string) bool {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "memory", "mem", "inmem":
		return true
	}
	return false
}

func (a *App) startState(ctx context.Context) error {
	backend, err := state.BuildBackendFromDSN(ctx, a.Config.StateDSN, state.BackendOptions{
		MigrationsPath: a.Config.StateMigrationsPath,
		Logger:         a.Logger,
	})
	if err != nil {
		return err
	}

	snapshot, err := state.LoadOrEmpty(ctx, backend, a.Logger)
	if err != nil {
		_ = backend.Close()
		return fmt.Errorf("failed to load state: %w", err)
	}
	a.backend = backend
	a.snapshot = snapshot
	return nil
}

func (a *App) startCatalog(context.Context) error {
	var items []models.Item
	if path := strings.TrimSpace(a.Config.CatalogSeedPath); path != "" {
		seeded, err := catalog.LoadSeed(path)
		if err != nil {
			return err
		}
		items = seeded
	}
	a.Catalog = catalog.NewMemoryCatalog(items...)
	a.Logger.Infof("Catalog loaded with %d items", len(items))
	return nil
}

func (a *App) startEngine(context.Context) error {
	opts := engine.Options{
		Secrets: a.Secrets,
		Catalog: a.Catalog,
		Backup:  catalog.NoopBackup{},
		Drift:   engine.Drift{Seed: a.Config.DriftSeed},
		Logger:  a.Logger,
		Limits: engine.Limits{
			SyncJobs:      a.Config.MaxSyncJobs,
			RetryJobs:     a.Config.MaxRetryJobs,
			WebhookEvents: a.Config.MaxWebhookEvents,
			LedgerEvents:  a.Config.MaxLedgerEvents,
			AuditEvents:   a.Config.MaxAuditEvents,
		},
		BackupCooldown: a.Config.BackupCooldown,
	}
	if dir := strings.TrimSpace(a.Config.BackupDir); dir != "" {
		opts.Backup = catalog.NewFileBackup(dir, nil, a.Logger)
	}
	// interface fields stay nil unless the integration is enabled
	if a.Producer != nil {
		opts.Publisher = a.Producer
	}
	if a.DeadLetters != nil {
		opts.DeadLetters = a.DeadLetters
	}

	e := engine.New(opts)
	e.Restore(a.snapshot)
	a.snapshot = nil

	a.Persister = state.NewPersister(a.backend, e.Snapshot, a.Config.StateDebounce, a.Logger)
	e.SetPersister(a.Persister)
	a.Engine = e
	return nil
}
