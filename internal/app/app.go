// Package app assembles evalforge's providers into a runnable process,
// the way the teacher's internal/app.App dispatches between server and
// worker deployment modes.
package app

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"evalforge/internal/config"
)

// DeploymentMode selects which components a process starts.
type DeploymentMode string

const (
	// ModeRun executes a single evaluation and exits (the CLI path).
	ModeRun DeploymentMode = "run"
	// ModeWorker runs the poll-driven task Pool and cron Scheduler as a
	// long-lived daemon (§4.6, §4.7).
	ModeWorker DeploymentMode = "worker"
)

// App owns a process's provider graph and its start/stop lifecycle.
type App struct {
	mode      DeploymentMode
	providers *Providers

	cancel       context.CancelFunc
	group        *errgroup.Group
	shutdownOnce sync.Once
}

// NewWorker builds the long-running worker process: task Pool polling
// for PENDING tasks plus the cron Scheduler for periodic re-evaluation.
func NewWorker(cfg *config.Config) (*App, error) {
	providers, err := NewProviders(cfg, ModeWorker)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize worker providers: %w", err)
	}
	return &App{mode: ModeWorker, providers: providers}, nil
}

// NewRunner builds a one-shot process wired only for synchronous
// evaluation (the `evalforge run` CLI path) — no Pool, no Scheduler.
func NewRunner(cfg *config.Config) (*App, error) {
	providers, err := NewProviders(cfg, ModeRun)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize runner providers: %w", err)
	}
	return &App{mode: ModeRun, providers: providers}, nil
}

// Providers exposes the constructed dependency graph to callers (the CLI
// commands invoke TaskManager/Engine/GuardrailEngine directly).
func (a *App) Providers() *Providers { return a.providers }

// Start launches the worker pool and scheduler in the background. It is
// a no-op in ModeRun, where callers drive the Engine/TaskManager
// directly and Start/Shutdown only manage provider connections.
func (a *App) Start() error {
	if a.mode != ModeWorker {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	group, groupCtx := errgroup.WithContext(ctx)
	a.group = group

	group.Go(func() error {
		a.providers.Pool.Run(groupCtx)
		return nil
	})

	a.providers.Scheduler.Start()
	a.providers.Logger.Info("worker started", "max_concurrent", a.providers.Config.Workers.MaxConcurrent)
	return nil
}

// Shutdown stops the scheduler and pool, then closes database
// connections. Safe to call multiple times.
func (a *App) Shutdown(ctx context.Context) error {
	var err error
	a.shutdownOnce.Do(func() {
		if a.mode == ModeWorker {
			if a.providers.Scheduler != nil {
				a.providers.Scheduler.Stop()
			}
			if a.cancel != nil {
				a.cancel()
			}
			if a.group != nil {
				_ = a.group.Wait()
			}
			if a.providers.Redis != nil {
				if closeErr := a.providers.Redis.Close(); closeErr != nil {
					err = closeErr
				}
			}
		}
		if a.providers.Postgres != nil {
			if closeErr := a.providers.Postgres.Close(); closeErr != nil {
				err = closeErr
			}
		}
		a.providers.Logger.Info("shutdown complete")
	})
	return err
}

// Health reports whether the process's database connections are alive.
func (a *App) Health() error {
	if err := a.providers.Postgres.Health(); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	if a.providers.Redis != nil {
		if err := a.providers.Redis.Health(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}
