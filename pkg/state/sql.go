package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const (
	stateTableName   = "fern_state"
	defaultStateKey  = "default"
	operationTimeout = 5 * time.Second
)

// sqlBackend stores the snapshot as one row keyed by state_key
type sqlBackend struct {
	db       database.DB
	flavor   sqlbuilder.Flavor
	stateKey string
	logger   ectologger.Logger
}

func (b *sqlBackend) Load(ctx context.Context) (*Snapshot, error) {
	ctx, span := tracing.StartSpan(ctx, "StateBackend.Load")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	sb := database.NewSelectBuilderFor(b.flavor)
	sb.Select("snapshot").From(stateTableName).Where(sb.Equal("state_key", b.stateKey))
	query, args := sb.Build()

	var payload string
	err := b.db.GetContext(ctx, &payload, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load state from %s: %w", b.db.DriverName(), err)
	}

	var snapshot Snapshot
	if err := json.Unmarshal([]byte(payload), &snapshot); err != nil {
		return nil, fmt.Errorf("%w: %s row %q: %v", ErrCorruptState, stateTableName, b.stateKey, err)
	}
	return &snapshot, nil
}

func (b *sqlBackend) Save(ctx context.Context, snapshot *Snapshot) error {
	if snapshot == nil {
		return nil
	}
	ctx, span := tracing.StartSpan(ctx, "StateBackend.Save")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	ib := database.NewInsertBuilderFor(b.flavor)
	ib.InsertInto(stateTableName).
		Cols("state_key", "snapshot", "updated_at").
		Values(b.stateKey, database.JSONB[Snapshot]{Data: *snapshot}, time.Now().UTC())
	ub := ib.OnConflict("state_key")
	ub.Set(
		ub.Assign("snapshot", database.Excluded("snapshot")),
		ub.Assign("updated_at", database.Excluded("updated_at")),
	)
	query, args := ib.Build()

	if _, err := b.db.ExecContext(ctx, query, args...); err != nil {
		b.logger.WithContext(ctx).WithError(err).Error("failed to save state snapshot")
		return fmt.Errorf("failed to save state to %s: %w", b.db.DriverName(), err)
	}
	return nil
}

func (b *sqlBackend) Close() error {
	return b.db.Close()
}
