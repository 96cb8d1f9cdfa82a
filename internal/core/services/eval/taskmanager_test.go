package eval

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	evaldomain "evalforge/internal/core/domain/eval"
	apperrors "evalforge/pkg/errors"
	"evalforge/pkg/ulid"
)

// fakeTaskStore is an in-memory TaskStore for testing the manager's
// lifecycle logic independent of GORM/Postgres.
type fakeTaskStore struct {
	mu      sync.Mutex
	tasks   map[string]*evaldomain.Task
	results map[string]*evaldomain.TaskResult
}

func newFakeTaskStore() *fakeTaskStore {
	return &fakeTaskStore{tasks: map[string]*evaldomain.Task{}, results: map[string]*evaldomain.TaskResult{}}
}

func (f *fakeTaskStore) Create(ctx context.Context, task *evaldomain.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *task
	f.tasks[task.ID.String()] = &cp
	return nil
}

func (f *fakeTaskStore) Get(ctx context.Context, id ulid.ULID) (*evaldomain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id.String()]
	if !ok {
		return nil, apperrors.NewErrorWithCode(apperrors.CodeTaskNotFound, id.String())
	}
	cp := *t
	return &cp, nil
}

func (f *fakeTaskStore) ListPending(ctx context.Context, limit int) ([]*evaldomain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*evaldomain.Task
	for _, t := range f.tasks {
		if t.State == evaldomain.TaskPending {
			cp := *t
			out = append(out, &cp)
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (f *fakeTaskStore) Transition(ctx context.Context, id ulid.ULID, from, to evaldomain.TaskState, touch func(*evaldomain.TaskTouch)) error {
	if !evaldomain.CanTransition(from, to) {
		return apperrors.NewErrorWithCode(apperrors.CodeInvalidTransition, string(from)+" -> "+string(to))
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	t, ok := f.tasks[id.String()]
	if !ok {
		return apperrors.NewErrorWithCode(apperrors.CodeTaskNotFound, id.String())
	}
	if t.State != from {
		if evaldomain.IsTerminal(t.State) {
			return apperrors.NewErrorWithCode(apperrors.CodeTaskAlreadyTerminal, string(t.State))
		}
		return apperrors.NewErrorWithCode(apperrors.CodeInvalidTransition, "state mismatch")
	}

	var touched evaldomain.TaskTouch
	if touch != nil {
		touch(&touched)
	}
	t.State = to
	t.UpdatedAt = time.Now().UTC()
	if touched.StartedAt != nil {
		t.StartedAt = touched.StartedAt
	}
	if touched.EndedAt != nil {
		t.EndedAt = touched.EndedAt
	}
	return nil
}

func (f *fakeTaskStore) SaveResult(ctx context.Context, result *evaldomain.TaskResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *result
	f.results[result.TaskID.String()] = &cp
	return nil
}

func (f *fakeTaskStore) GetResult(ctx context.Context, taskID ulid.ULID) (*evaldomain.TaskResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.results[taskID.String()]
	if !ok {
		return nil, apperrors.NewErrorWithCode(apperrors.CodeTaskNotFound, taskID.String())
	}
	cp := *r
	return &cp, nil
}

// fakeDatasetLoader returns a fixed, tiny dataset.
type fakeDatasetLoader struct{ items []evaldomain.DatasetItem }

func (f *fakeDatasetLoader) Load(ctx context.Context, datasetID string) ([]evaldomain.DatasetItem, error) {
	return f.items, nil
}

func newTestTaskManager(t *testing.T) (*TaskManager, *fakeTaskStore) {
	t.Helper()
	store := newFakeTaskStore()
	loader := &fakeDatasetLoader{items: []evaldomain.DatasetItem{
		{ID: "t1", Expected: map[string]interface{}{"expected": "x"}},
	}}
	registries := NewRegistries()
	registries.Adapters.Register("stub", &stubAdapter{})
	registries.Scorers.Register("exact", &exactScorer{})
	engine := NewEngine(registries, testLogger(), EngineConfig{ConcurrencyLimit: 2})
	manager := NewTaskManager(store, loader, engine, testLogger())
	return manager, store
}

func TestTaskManager_CreateExecuteCompletes(t *testing.T) {
	manager, _ := newTestTaskManager(t)

	task, err := manager.Create(context.Background(), CreateTaskRequest{
		EvalName: "demo", DatasetID: "ds", AdapterName: "stub", ScorerNames: []string{"exact"},
	})
	require.NoError(t, err)
	assert.Equal(t, evaldomain.TaskPending, task.State)

	err = manager.Execute(context.Background(), task.ID)
	require.NoError(t, err)

	finished, err := manager.Get(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, evaldomain.TaskCompleted, finished.State)
	assert.NotNil(t, finished.StartedAt)
	assert.NotNil(t, finished.EndedAt)
}

func TestTaskManager_CancelTerminalTaskFails(t *testing.T) {
	manager, _ := newTestTaskManager(t)

	task, err := manager.Create(context.Background(), CreateTaskRequest{
		EvalName: "demo", DatasetID: "ds", AdapterName: "stub", ScorerNames: []string{"exact"},
	})
	require.NoError(t, err)
	require.NoError(t, manager.Execute(context.Background(), task.ID))

	err = manager.Cancel(context.Background(), task.ID)
	assert.Error(t, err)
}

func TestTaskManager_SetBaselineRegistersOnSuccess(t *testing.T) {
	manager, _ := newTestTaskManager(t)
	baselines := NewBaselineRegistry()
	comparer := NewComparisonEngine(0)
	manager.WithBaselines(baselines, comparer)

	task, err := manager.Create(context.Background(), CreateTaskRequest{
		EvalName: "demo", DatasetID: "ds", AdapterName: "stub", ScorerNames: []string{"exact"}, SetBaseline: true,
	})
	require.NoError(t, err)
	require.NoError(t, manager.Execute(context.Background(), task.ID))

	result, err := manager.Get(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, evaldomain.TaskCompleted, result.State)

	_, ok := baselines.GetBaseline(ComputeEvalID("demo", []string{"exact"}, "ds"))
	assert.True(t, ok, "a task created with SetBaseline must register its result as the eval's baseline on success")
}

func TestTaskManager_ExecuteRecordsExecutionTimeAndMetadata(t *testing.T) {
	manager, store := newTestTaskManager(t)

	task, err := manager.Create(context.Background(), CreateTaskRequest{
		EvalName: "demo", DatasetID: "ds", AdapterName: "stub", ScorerNames: []string{"exact"},
	})
	require.NoError(t, err)
	require.NoError(t, manager.Execute(context.Background(), task.ID))

	result, err := store.GetResult(context.Background(), task.ID)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, result.ExecutionTimeSeconds, 0.0)
	assert.NotNil(t, result.Metadata)
}

func TestTaskManager_CompareToBaselineWithoutOneConfiguredErrors(t *testing.T) {
	manager, _ := newTestTaskManager(t)

	task, err := manager.Create(context.Background(), CreateTaskRequest{
		EvalName: "demo", DatasetID: "ds", AdapterName: "stub", ScorerNames: []string{"exact"},
	})
	require.NoError(t, err)
	require.NoError(t, manager.Execute(context.Background(), task.ID))

	_, err = manager.CompareToBaseline(context.Background(), task.ID, 0.01)
	assert.Error(t, err)
}

func TestTaskManager_CompareToBaselineGradesAgainstRegisteredBaseline(t *testing.T) {
	manager, _ := newTestTaskManager(t)
	baselines := NewBaselineRegistry()
	comparer := NewComparisonEngine(0)
	manager.WithBaselines(baselines, comparer)

	baselineTask, err := manager.Create(context.Background(), CreateTaskRequest{
		EvalName: "demo", DatasetID: "ds", AdapterName: "stub", ScorerNames: []string{"exact"}, SetBaseline: true,
	})
	require.NoError(t, err)
	require.NoError(t, manager.Execute(context.Background(), baselineTask.ID))

	candidateTask, err := manager.Create(context.Background(), CreateTaskRequest{
		EvalName: "demo", DatasetID: "ds", AdapterName: "stub", ScorerNames: []string{"exact"},
	})
	require.NoError(t, err)
	require.NoError(t, manager.Execute(context.Background(), candidateTask.ID))

	comparison, err := manager.CompareToBaseline(context.Background(), candidateTask.ID, 0.01)
	require.NoError(t, err)
	assert.NotNil(t, comparison)
}

func TestTaskManager_DoubleExecuteLosesRace(t *testing.T) {
	manager, _ := newTestTaskManager(t)

	task, err := manager.Create(context.Background(), CreateTaskRequest{
		EvalName: "demo", DatasetID: "ds", AdapterName: "stub", ScorerNames: []string{"exact"},
	})
	require.NoError(t, err)

	require.NoError(t, manager.Execute(context.Background(), task.ID))
	// A second Execute against an already-running-then-completed task
	// must fail its CAS transition rather than silently re-running.
	err = manager.Execute(context.Background(), task.ID)
	assert.Error(t, err)
}
