package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileBackend stores sealed secrets in a single 0600 JSON file, rewritten
// atomically on every change.
type FileBackend struct {
	path    string
	mu      sync.Mutex
	entries map[string][]byte
}

// NewFileBackend opens (or creates on first write) the secrets file at path
func NewFileBackend(path string) (*FileBackend, error) {
	b := &FileBackend{
		path:    path,
		entries: make(map[string][]byte),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return b, nil
		}
		return nil, fmt.Errorf("failed to read secrets file: %w", err)
	}
	if len(data) == 0 {
		return b, nil
	}
	if err := json.Unmarshal(data, &b.entries); err != nil {
		return nil, fmt.Errorf("secrets file %s is corrupt: %w", path, err)
	}
	return b, nil
}

func (b *FileBackend) Put(_ context.Context, account string, sealed []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	previous, existed := b.entries[account]
	b.entries[account] = append([]byte(nil), sealed...)
	if err := b.writeLocked(); err != nil {
		if existed {
			b.entries[account] = previous
		} else {
			delete(b.entries, account)
		}
		return err
	}
	return nil
}

func (b *FileBackend) Fetch(_ context.Context, account string) ([]byte, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sealed, ok := b.entries[account]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), sealed...), true, nil
}

func (b *FileBackend) Delete(_ context.Context, account string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.entries[account]; !ok {
		return nil
	}
	delete(b.entries, account)
	return b.writeLocked()
}

func (b *FileBackend) writeLocked() error {
	data, err := json.Marshal(b.entries)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(b.path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return err
		}
	}
	tmp := b.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, b.path)
}
