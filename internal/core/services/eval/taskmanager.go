package eval

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	evaldomain "evalforge/internal/core/domain/eval"
	apperrors "evalforge/pkg/errors"
	"evalforge/pkg/ulid"
)

// TaskStore is the persistence surface the task manager drives through
// the lifecycle's legal transitions (I4). Implemented by
// internal/infrastructure/repository/eval.TaskStore; kept as an
// interface here so the manager can be unit tested against a fake.
type TaskStore interface {
	Create(ctx context.Context, task *evaldomain.Task) error
	Get(ctx context.Context, id ulid.ULID) (*evaldomain.Task, error)
	ListPending(ctx context.Context, limit int) ([]*evaldomain.Task, error)
	Transition(ctx context.Context, id ulid.ULID, from, to evaldomain.TaskState, touch func(*evaldomain.TaskTouch)) error
	SaveResult(ctx context.Context, result *evaldomain.TaskResult) error
	GetResult(ctx context.Context, taskID ulid.ULID) (*evaldomain.TaskResult, error)
}

// CreateTaskRequest is the client-facing request to register a new
// evaluation task (§4.6).
type CreateTaskRequest struct {
	EvalName    string
	DatasetID   string
	AdapterName string
	ScorerNames []string
	SinkNames   []string
	Model       string
	Params      map[string]interface{}
	// SetBaseline registers this task's EvalResult as the baseline for its
	// eval_id on successful completion (§4.8, SPEC_FULL supplement 1).
	SetBaseline bool
}

// Transactor wraps a closure in a database transaction, letting the
// manager commit a task's result and terminal-state transition
// atomically. infrastructure/database.Transactor satisfies this
// structurally; a nil Transactor (the zero value) runs fn un-wrapped, so
// tests against an in-memory TaskStore don't need one.
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// TaskManager owns the task lifecycle (§4.6): creating pending tasks,
// claiming and executing them through the Engine, and recording their
// terminal outcome. It is the synchronous counterpart to the worker pool,
// which calls Execute from a polling loop.
type TaskManager struct {
	store     TaskStore
	loader    DatasetLoader
	engine    *Engine
	logger    *slog.Logger
	tx        Transactor
	baselines *BaselineRegistry
	comparer  *ComparisonEngine
}

func NewTaskManager(store TaskStore, loader DatasetLoader, engine *Engine, logger *slog.Logger) *TaskManager {
	return &TaskManager{store: store, loader: loader, engine: engine, logger: logger}
}

// WithTransactor attaches a Transactor so finish commits SaveResult and
// the terminal Transition as a single database transaction.
func (m *TaskManager) WithTransactor(tx Transactor) *TaskManager {
	m.tx = tx
	return m
}

// WithBaselines attaches a BaselineRegistry and ComparisonEngine so a task
// created with CreateTaskRequest.SetBaseline registers its result as the
// eval_id's reference point on success, and CompareToBaseline can grade
// later runs against it (§4.8, SPEC_FULL supplement 1).
func (m *TaskManager) WithBaselines(baselines *BaselineRegistry, comparer *ComparisonEngine) *TaskManager {
	m.baselines = baselines
	m.comparer = comparer
	return m
}

// Create registers a new task in the pending state.
func (m *TaskManager) Create(ctx context.Context, req CreateTaskRequest) (*evaldomain.Task, error) {
	now := time.Now().UTC()
	task := &evaldomain.Task{
		ID:          ulid.New(),
		State:       evaldomain.TaskPending,
		EvalName:    req.EvalName,
		DatasetID:   req.DatasetID,
		AdapterName: req.AdapterName,
		ScorerNames: req.ScorerNames,
		SinkNames:   req.SinkNames,
		Params:      req.Params,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if task.Params == nil {
		task.Params = map[string]interface{}{}
	}
	if req.Model != "" {
		task.Params["model"] = req.Model
	}
	if req.SetBaseline {
		task.Params["set_baseline"] = true
	}
	if err := m.store.Create(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

// Get returns a task by id.
func (m *TaskManager) Get(ctx context.Context, id ulid.ULID) (*evaldomain.Task, error) {
	return m.store.Get(ctx, id)
}

// Cancel moves a task to cancelled from pending or running (I4). Cancelling
// a task that is already terminal is an error (§4.6 edge case).
func (m *TaskManager) Cancel(ctx context.Context, id ulid.ULID) error {
	task, err := m.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if evaldomain.IsTerminal(task.State) {
		return apperrors.NewErrorWithCode(apperrors.CodeTaskAlreadyTerminal, string(task.State))
	}
	now := time.Now().UTC()
	return m.store.Transition(ctx, id, task.State, evaldomain.TaskCancelled, func(s *evaldomain.TaskTouch) {
		s.EndedAt = &now
	})
}

// Execute claims a pending task (pending -> running, I4) and runs it to
// completion through the Engine, recording the terminal state and
// TaskResult. The CAS in Transition means a losing worker's Execute call
// returns a CodeInvalidTransition/CodeTaskAlreadyTerminal error instead of
// double-running the task (§4.6, concurrency model §5).
func (m *TaskManager) Execute(ctx context.Context, id ulid.ULID) error {
	task, err := m.store.Get(ctx, id)
	if err != nil {
		return err
	}

	startedAt := time.Now().UTC()
	if err := m.store.Transition(ctx, id, evaldomain.TaskPending, evaldomain.TaskRunning, func(s *evaldomain.TaskTouch) {
		s.StartedAt = &startedAt
	}); err != nil {
		return err
	}

	dataset, err := m.loader.Load(ctx, task.DatasetID)
	if err != nil {
		return m.finish(ctx, task, nil, err, startedAt)
	}

	model, _ := task.Params["model"].(string)
	result, runErr := m.engine.Run(ctx, RunRequest{
		Name:        task.EvalName,
		DatasetID:   task.DatasetID,
		AdapterName: task.AdapterName,
		ScorerNames: task.ScorerNames,
		SinkNames:   task.SinkNames,
		Model:       model,
		Dataset:     dataset,
	})

	return m.finish(ctx, task, result, runErr, startedAt)
}

func (m *TaskManager) finish(ctx context.Context, task *evaldomain.Task, result *evaldomain.EvalResult, runErr error, startedAt time.Time) error {
	endedAt := time.Now().UTC()
	to := evaldomain.TaskCompleted
	errMsg := ""
	if runErr != nil {
		to = evaldomain.TaskFailed
		errMsg = runErr.Error()
		m.logger.Error("task execution failed", "task_id", task.ID.String(), "error", runErr)
	} else if m.baselines != nil && result != nil {
		if setBaseline, _ := task.Params["set_baseline"].(bool); setBaseline {
			m.baselines.SetBaseline(result)
		}
	}

	commit := func(ctx context.Context) error {
		if saveErr := m.store.SaveResult(ctx, &evaldomain.TaskResult{
			TaskID:               task.ID,
			EvalResult:           result,
			ExecutionTimeSeconds: endedAt.Sub(startedAt).Seconds(),
			Error:                errMsg,
			Metadata:             map[string]interface{}{},
		}); saveErr != nil {
			return saveErr
		}
		return m.store.Transition(ctx, task.ID, evaldomain.TaskRunning, to, func(s *evaldomain.TaskTouch) {
			s.EndedAt = &endedAt
		})
	}

	var commitErr error
	if m.tx != nil {
		commitErr = m.tx.WithinTransaction(ctx, commit)
	} else {
		commitErr = commit(ctx)
	}
	if commitErr != nil {
		m.logger.Error("failed to commit task result", "task_id", task.ID.String(), "error", commitErr)
		return commitErr
	}
	return runErr
}

// CompareToBaseline grades a completed task's result against the
// registered baseline for its eval_id, the deployment-gate flow from
// §4.8 driven off the task store rather than two hand-supplied
// EvalResults (SPEC_FULL supplement 1).
func (m *TaskManager) CompareToBaseline(ctx context.Context, taskID ulid.ULID, threshold float64) (*Comparison, error) {
	if m.baselines == nil || m.comparer == nil {
		return nil, apperrors.NewErrorWithCode(apperrors.CodeConfigInvalid, "baseline comparison is not configured")
	}
	taskResult, err := m.store.GetResult(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if taskResult.EvalResult == nil {
		return nil, fmt.Errorf("task %s has no eval result to compare", taskID)
	}
	return m.baselines.CompareToBaseline(m.comparer, taskResult.EvalResult, threshold)
}
