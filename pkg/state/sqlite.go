package state

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"
	_ "github.com/mattn/go-sqlite3"

	"github.com/Ramsey-B/fern/pkg/database"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS fern_state (
	state_key TEXT PRIMARY KEY,
	snapshot TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
)`

// NewSQLiteBackend opens (or creates) a SQLite database at path
func NewSQLiteBackend(ctx context.Context, path string, logger ectologger.Logger) (Backend, error) {
	db, err := database.Open(ctx, "sqlite3", path, logger)
	if err != nil {
		return nil, err
	}

	// single writer avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, stmt := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		sqliteSchema,
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to prepare sqlite state store: %w", err)
		}
	}

	return &sqlBackend{
		db:       db,
		flavor:   sqlbuilder.SQLite,
		stateKey: defaultStateKey,
		logger:   logger,
	}, nil
}
