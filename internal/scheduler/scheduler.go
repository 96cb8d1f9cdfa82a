// Package scheduler runs evaluations on a cron schedule, grounded on the
// original's aieval.monitoring.scheduler.EvaluationScheduler but built on
// github.com/robfig/cron/v3 instead of hand-rolled asyncio.sleep
// scheduling loops.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	evalsvc "evalforge/internal/core/services/eval"
)

// Scheduler periodically re-enqueues an evaluation task per a cron
// expression (§9 supplement, grounded on the original's
// EvaluationScheduler). Unlike the Python original, which owned one
// asyncio task per schedule, this wraps a single robfig/cron.Cron
// instance shared across every registered schedule.
type Scheduler struct {
	cron    *cron.Cron
	logger  *slog.Logger
	manager *evalsvc.TaskManager

	mu      sync.Mutex
	entries map[string]cron.EntryID
}

func New(manager *evalsvc.TaskManager, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(cron.WithSeconds()),
		logger:  logger,
		manager: manager,
		entries: make(map[string]cron.EntryID),
	}
}

// Schedule registers a cron expression that creates a new pending task
// from req every time it fires. Returns an error if name is already
// scheduled (mirrors the original raising ValueError on a duplicate name).
func (s *Scheduler) Schedule(name, cronExpr string, req evalsvc.CreateTaskRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[name]; exists {
		return fmt.Errorf("schedule %q already exists", name)
	}

	id, err := s.cron.AddFunc(cronExpr, func() {
		ctx := context.Background()
		task, err := s.manager.Create(ctx, req)
		if err != nil {
			s.logger.Error("scheduled evaluation failed to enqueue", "schedule", name, "error", err)
			return
		}
		s.logger.Info("scheduled evaluation enqueued", "schedule", name, "task_id", task.ID.String())
	})
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", cronExpr, err)
	}

	s.entries[name] = id
	s.logger.Info("registered schedule", "schedule", name, "cron", cronExpr)
	return nil
}

// Remove cancels a previously registered schedule.
func (s *Scheduler) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.entries[name]; ok {
		s.cron.Remove(id)
		delete(s.entries, name)
		s.logger.Info("removed schedule", "schedule", name)
	}
}

// Start begins running registered schedules in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("evaluation scheduler started")
}

// Stop halts the scheduler and waits for any in-flight job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("evaluation scheduler stopped")
}
