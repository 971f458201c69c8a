package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/engine"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/redis"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

var (
	// ErrSchedulerAlreadyRunning is returned when trying to start an already running scheduler
	ErrSchedulerAlreadyRunning = errors.New("scheduler already running")
)

const (
	// DefaultPollInterval is the default interval between retry runs
	DefaultPollInterval = 30 * time.Second

	// DefaultLockTTL is the default TTL for the distributed lock
	DefaultLockTTL = 60 * time.Second

	// DefaultBatchSize is the number of due retries processed per run
	DefaultBatchSize = engine.DefaultRetryBatch

	// LockKey names the lock guarding a retry run
	LockKey = "scheduler:retries"
)

// RetryProcessor runs due retry jobs
type RetryProcessor interface {
	ProcessAllDueRetries(ctx context.Context, limit int) engine.RetryRunResult
}

// Locker serializes retry runs across processes
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func() error) error
}

// Config holds configuration for the scheduler
type Config struct {
	// PollInterval is how often due retries are processed
	PollInterval time.Duration

	// LockTTL is how long a run may hold the lock
	LockTTL time.Duration

	// BatchSize is the maximum number of retries processed per run
	BatchSize int
}

// DefaultConfig returns the default scheduler configuration
func DefaultConfig() Config {
	return Config{
		PollInterval: DefaultPollInterval,
		LockTTL:      DefaultLockTTL,
		BatchSize:    DefaultBatchSize,
	}
}

// RetryScheduler drains due sync retries on a ticker
type RetryScheduler struct {
	processor RetryProcessor
	locker    Locker
	config    Config
	logger    ectologger.Logger

	stopCh   chan struct{}
	stoppedC chan struct{}
	running  bool
	mu       sync.RWMutex
}

// NewRetryScheduler creates a scheduler. locker may be nil for a single process.
func NewRetryScheduler(processor RetryProcessor, locker Locker, config Config, logger ectologger.Logger) *RetryScheduler {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}
	if config.LockTTL <= 0 {
		config.LockTTL = DefaultLockTTL
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultBatchSize
	}

	return &RetryScheduler{
		processor: processor,
		locker:    locker,
		config:    config,
		logger:    logger,
		stopCh:    make(chan struct{}),
		stoppedC:  make(chan struct{}),
	}
}

// Start starts the poll loop. A stopped scheduler cannot be restarted.
func (s *RetryScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrSchedulerAlreadyRunning
	}
	s.running = true
	s.mu.Unlock()

	s.logger.WithContext(ctx).Infof("Starting retry scheduler: poll_interval=%s batch_size=%d",
		s.config.PollInterval, s.config.BatchSize)

	go s.pollLoop(ctx)
	return nil
}

// Stop stops the scheduler and waits for an in-flight run to finish
func (s *RetryScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)

	select {
	case <-s.stoppedC:
		s.logger.WithContext(ctx).Info("Retry scheduler stopped")
	case <-ctx.Done():
		s.logger.WithContext(ctx).Warn("Retry scheduler shutdown timed out")
		return ctx.Err()
	}
	return nil
}

// IsRunning returns whether the scheduler is running
func (s *RetryScheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *RetryScheduler) pollLoop(ctx context.Context) {
	defer close(s.stoppedC)

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	s.RunOnce(ctx)

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce processes due retries once, under the lock when one is configured.
// A run skipped because another process holds the lock is not an error.
func (s *RetryScheduler) RunOnce(ctx context.Context) {
	ctx, span := tracing.StartSpan(ctx, "RetryScheduler.RunOnce")
	defer span.End()

	var result engine.RetryRunResult
	run := func() error {
		result = s.processor.ProcessAllDueRetries(ctx, s.config.BatchSize)
		return nil
	}

	var err error
	if s.locker != nil {
		err = s.locker.WithLock(ctx, LockKey, s.config.LockTTL, run)
	} else {
		err = run()
	}

	switch {
	case errors.Is(err, redis.ErrLockNotAcquired):
		metrics.RecordSchedulerRun("skipped")
		s.logger.WithContext(ctx).Debug("Retry run skipped, lock held elsewhere")
		return
	case err != nil:
		metrics.RecordSchedulerRun("error")
		s.logger.WithContext(ctx).WithError(err).Error("Retry run failed")
		return
	}

	metrics.RecordSchedulerRun("success")
	if result.Attempted > 0 {
		s.logger.WithContext(ctx).WithFields(map[string]any{
			"attempted": result.Attempted,
			"resolved":  result.Resolved,
			"requeued":  result.Requeued,
			"abandoned": result.Abandoned,
		}).Info("Processed due retries")
	}
}
