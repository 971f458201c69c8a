package state

import (
	"context"
	"encoding/json"
	"sync"
)

// MemoryBackend holds a deep copy of the last saved snapshot
type MemoryBackend struct {
	mu       sync.Mutex
	snapshot []byte
	saves    int
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{}
}

func (b *MemoryBackend) Load(_ context.Context) (*Snapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.snapshot == nil {
		return nil, nil
	}
	var clone Snapshot
	if err := json.Unmarshal(b.snapshot, &clone); err != nil {
		return nil, err
	}
	return &clone, nil
}

func (b *MemoryBackend) Save(_ context.Context, snapshot *Snapshot) error {
	if snapshot == nil {
		return nil
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.snapshot = data
	b.saves++
	return nil
}

// Saves reports how many times Save has succeeded
func (b *MemoryBackend) Saves() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.saves
}

func (b *MemoryBackend) Close() error {
	return nil
}
