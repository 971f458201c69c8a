package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// BackupHook takes a safety snapshot of items before a risky mutation.
// Implementations skip the snapshot when one was taken for the same scope within cooldown.
type BackupHook interface {
	CreateGuardedBackupIfNeeded(ctx context.Context, reason string, scope []models.Item, cooldown time.Duration) error
}

// NoopBackup never writes anything
type NoopBackup struct{}

func (NoopBackup) CreateGuardedBackupIfNeeded(context.Context, string, []models.Item, time.Duration) error {
	return nil
}

// FileBackup writes the scoped items to a timestamped JSON file under dir
type FileBackup struct {
	dir    string
	now    func() time.Time
	logger ectologger.Logger

	mu   sync.Mutex
	last map[string]time.Time
}

type backupDocument struct {
	Reason    string        `json:"reason"`
	Scope     string        `json:"scope"`
	CreatedAt time.Time     `json:"created_at"`
	Items     []models.Item `json:"items"`
}

func NewFileBackup(dir string, now func() time.Time, logger ectologger.Logger) *FileBackup {
	if now == nil {
		now = time.Now
	}
	return &FileBackup{
		dir:    dir,
		now:    now,
		logger: logger,
		last:   map[string]time.Time{},
	}
}

// scopeKey names the workspace a set of items belongs to
func scopeKey(scope []models.Item) string {
	if len(scope) == 0 {
		return models.AllWorkspaces
	}
	key := scope[0].Workspace
	for _, item := range scope[1:] {
		if item.Workspace != key {
			return models.AllWorkspaces
		}
	}
	return key
}

func (b *FileBackup) CreateGuardedBackupIfNeeded(ctx context.Context, reason string, scope []models.Item, cooldown time.Duration) error {
	ctx, span := tracing.StartSpan(ctx, "FileBackup.CreateGuardedBackupIfNeeded")
	defer span.End()

	key := scopeKey(scope)
	now := b.now().UTC()

	b.mu.Lock()
	defer b.mu.Unlock()

	if last, ok := b.last[key]; ok && now.Sub(last) < cooldown {
		return nil
	}

	data, err := json.MarshalIndent(backupDocument{
		Reason:    reason,
		Scope:     key,
		CreatedAt: now,
		Items:     scope,
	}, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(b.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create backup dir: %w", err)
	}

	path := filepath.Join(b.dir, fmt.Sprintf("backup-%s-%s.json", key, now.Format("20060102T150405.000000000")))
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write backup: %w", err)
	}

	b.last[key] = now
	b.logger.WithContext(ctx).WithFields(map[string]any{
		"scope":  key,
		"reason": reason,
		"items":  len(scope),
	}).Info("wrote guarded backup")
	return nil
}
