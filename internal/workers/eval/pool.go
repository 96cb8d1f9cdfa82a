// Package eval implements the background worker pool and durable
// workflow layer that execute tasks the task manager has queued (§4.6,
// §4.7), grounded on the teacher's internal/workers poller-plus-semaphore
// shape (cmd/worker, internal/workers/analytics).
package eval

import (
	"context"
	"log/slog"
	"sync"
	"time"

	evaldomain "evalforge/internal/core/domain/eval"
	evalsvc "evalforge/internal/core/services/eval"
	"evalforge/pkg/ulid"
)

// PoolConfig carries the worker pool's tunables (§4.6, §5).
type PoolConfig struct {
	// MaxConcurrent bounds how many tasks execute at once. Default 3 (§5).
	MaxConcurrent int
	// PollInterval is how often the pool checks for newly pending tasks.
	PollInterval time.Duration
	// BatchSize is how many pending tasks to claim per poll.
	BatchSize int
}

func (c *PoolConfig) setDefaults() {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 3
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = c.MaxConcurrent
	}
}

// PendingLister is the subset of the task store the pool needs to
// discover pending work; infrastructure/repository/eval.TaskStore
// satisfies it as-is.
type PendingLister interface {
	ListPending(ctx context.Context, limit int) ([]*evaldomain.Task, error)
}

// ClaimLocker lets multiple Pool processes polling the same task store
// avoid dispatching the same PENDING task into Execute at the same
// moment: TryClaim acquires a short-lived distributed lock on a task id,
// returning false if another process already holds it. The task store's
// CAS transition (§4.6 I4) remains the source of truth for correctness —
// a lock miss only wastes a doomed Execute call, it never causes one to
// wrongly succeed — so a nil ClaimLocker (single-process deployment) is
// always safe.
type ClaimLocker interface {
	TryClaim(ctx context.Context, taskID string, ttl time.Duration) (bool, error)
}

// Pool polls the task store for pending tasks and executes up to
// MaxConcurrent of them at a time through the TaskManager, bounded by a
// counting semaphore (§5 P2, same pattern as the evaluation engine's
// per-item concurrency limit).
type Pool struct {
	manager *evalsvc.TaskManager
	store   PendingLister
	locker  ClaimLocker
	logger  *slog.Logger
	cfg     PoolConfig

	sem chan struct{}
}

func NewPool(manager *evalsvc.TaskManager, store PendingLister, logger *slog.Logger, cfg PoolConfig) *Pool {
	cfg.setDefaults()
	return &Pool{
		manager: manager,
		store:   store,
		logger:  logger,
		cfg:     cfg,
		sem:     make(chan struct{}, cfg.MaxConcurrent),
	}
}

// WithClaimLocker attaches a distributed claim lock, for deployments
// running more than one Pool against the same task store.
func (p *Pool) WithClaimLocker(locker ClaimLocker) *Pool {
	p.locker = locker
	return p
}

// Run polls until ctx is cancelled, dispatching claimed tasks to the
// TaskManager, and blocks until every in-flight task has finished before
// returning.
func (p *Pool) Run(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	var wg sync.WaitGroup
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return
		case <-ticker.C:
			tasks, err := p.store.ListPending(ctx, p.cfg.BatchSize)
			if err != nil {
				p.logger.Error("poll pending tasks failed", "error", err)
				continue
			}
			for _, t := range tasks {
				if p.locker != nil {
					claimed, err := p.locker.TryClaim(ctx, t.ID.String(), p.cfg.PollInterval*4)
					if err != nil {
						p.logger.Warn("claim lock failed, proceeding unlocked", "task_id", t.ID.String(), "error", err)
					} else if !claimed {
						continue
					}
				}
				select {
				case p.sem <- struct{}{}:
				default:
					// Pool saturated; leave the task pending for the next poll.
					continue
				}
				wg.Add(1)
				go func(id ulid.ULID) {
					defer wg.Done()
					defer func() { <-p.sem }()
					p.execute(ctx, id)
				}(t.ID)
			}
		}
	}
}

func (p *Pool) execute(ctx context.Context, id ulid.ULID) {
	if err := p.manager.Execute(ctx, id); err != nil {
		p.logger.Warn("task execution returned error", "task_id", id.String(), "error", err)
	}
}
