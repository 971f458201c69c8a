package state

import (
	"context"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/metrics"
)

// DefaultDebounce is the quiescence window saves are coalesced within
const DefaultDebounce = 120 * time.Millisecond

// Persister is a debounced write-behind over a Backend. Mutations call Schedule;
// the snapshot is taken from source when the window elapses, so a burst of
// mutations produces one save. A crash inside the window loses those mutations.
//
// source is called without any Persister lock held and must not call back into
// the Persister.
type Persister struct {
	backend Backend
	source  func() *Snapshot
	delay   time.Duration
	logger  ectologger.Logger

	mu     sync.Mutex
	timer  *time.Timer
	dirty  bool
	closed bool

	saveMu  sync.Mutex
	lastErr error
}

func NewPersister(backend Backend, source func() *Snapshot, delay time.Duration, logger ectologger.Logger) *Persister {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	return &Persister{
		backend: backend,
		source:  source,
		delay:   delay,
		logger:  logger,
	}
}

// Schedule marks state dirty and (re)starts the debounce timer
func (p *Persister) Schedule() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.dirty = true
	if p.timer != nil {
		p.timer.Stop()
	}
	p.timer = time.AfterFunc(p.delay, p.fire)
}

func (p *Persister) fire() {
	if !p.takeDirty() {
		return
	}
	if err := p.save(context.Background()); err != nil {
		p.logger.WithError(err).Error("debounced state save failed")
	}
}

// Flush saves pending changes synchronously
func (p *Persister) Flush(ctx context.Context) error {
	if !p.takeDirty() {
		return nil
	}
	return p.save(ctx)
}

// Close flushes pending changes and ignores later Schedule calls
func (p *Persister) Close(ctx context.Context) error {
	err := p.Flush(ctx)

	p.mu.Lock()
	p.closed = true
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.mu.Unlock()

	return err
}

// LastError returns the error of the most recent save, or nil
func (p *Persister) LastError() error {
	p.saveMu.Lock()
	defer p.saveMu.Unlock()
	return p.lastErr
}

func (p *Persister) takeDirty() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	if !p.dirty {
		return false
	}
	p.dirty = false
	return true
}

func (p *Persister) save(ctx context.Context) error {
	p.saveMu.Lock()
	defer p.saveMu.Unlock()

	start := time.Now()
	snapshot := p.source()
	snapshot.Version = SchemaVersion
	snapshot.SavedAt = start.UTC()

	err := p.backend.Save(ctx, snapshot)
	p.lastErr = err
	if err != nil {
		metrics.RecordStateSave("error", time.Since(start))
		// keep the changes pending so the next Schedule or Flush retries
		p.mu.Lock()
		p.dirty = true
		p.mu.Unlock()
		return err
	}
	metrics.RecordStateSave("success", time.Since(start))
	return nil
}
