package state

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/huandu/go-sqlbuilder"
	_ "github.com/lib/pq"

	"github.com/Ramsey-B/fern/pkg/database"
)

// DefaultMigrationsPath holds the postgres schema migrations
const DefaultMigrationsPath = "db/pg"

// NewPostgresBackend connects, applies the schema migrations and returns a snapshot backend
func NewPostgresBackend(ctx context.Context, dsn, migrationsPath string, logger ectologger.Logger) (Backend, error) {
	if migrationsPath == "" {
		migrationsPath = DefaultMigrationsPath
	}

	db, err := database.Open(ctx, "postgres", dsn, logger)
	if err != nil {
		return nil, err
	}

	driver, err := postgres.WithInstance(db.SQL(), &postgres.Config{})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create migration driver: %w", err)
	}
	migrations := database.NewMigrationService(logger, &database.MigrationConfig{MigrationFolderPath: migrationsPath})
	if err := migrations.Migrate("postgres", driver); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &sqlBackend{
		db:       db,
		flavor:   sqlbuilder.PostgreSQL,
		stateKey: defaultStateKey,
		logger:   logger,
	}, nil
}
