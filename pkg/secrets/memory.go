package secrets

import (
	"context"
	"sync"
)

// MemoryBackend keeps sealed secrets in process memory
type MemoryBackend struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{entries: make(map[string][]byte)}
}

func (b *MemoryBackend) Put(_ context.Context, account string, sealed []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[account] = append([]byte(nil), sealed...)
	return nil
}

func (b *MemoryBackend) Fetch(_ context.Context, account string) ([]byte, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	sealed, ok := b.entries[account]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), sealed...), true, nil
}

func (b *MemoryBackend) Delete(_ context.Context, account string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.entries, account)
	return nil
}
