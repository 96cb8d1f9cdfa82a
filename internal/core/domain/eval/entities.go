// Package eval defines the core data model of the evaluation engine:
// dataset items, scores, eval results, and the durable task/workflow
// records that track a run end to end.
package eval

import (
	"time"

	"evalforge/pkg/ulid"
)

// DatasetItem is a single unit of input fed to an adapter under evaluation.
// Input and Expected are left as arbitrary JSON-shaped maps because a
// dataset's schema is defined by its source file, not by this package.
type DatasetItem struct {
	ID string `json:"id"`
	// Output is pre-populated for offline scoring (§4.1): when set, the
	// engine skips the adapter entirely and scores this value directly.
	Output   map[string]interface{} `json:"output,omitempty"`
	Input    map[string]interface{} `json:"input"`
	Expected map[string]interface{} `json:"expected,omitempty"`
	Tags     []string                `json:"tags,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Score is the output of a single scorer applied to a single adapter
// response for a single dataset item. Value always carries the numeric
// (or boolean-coerced) grade; Passed is the boolean view for scorers
// whose natural output is true/false (I3).
type Score struct {
	ItemID   string                 `json:"item_id"`
	Name     string                 `json:"name"`
	Value    float64                `json:"value"`
	Passed   bool                   `json:"passed"`
	// EvalID is the scorer's own versioned identifier (e.g.
	// "deep_diff.v3"), distinct from EvalResult.EvalID which identifies
	// the run's (name, scorers, dataset) configuration.
	EvalID        string                 `json:"eval_id,omitempty"`
	Reason        string                 `json:"reason,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
	TraceID       string                 `json:"trace_id,omitempty"`
	ObservationID string                 `json:"observation_id,omitempty"`
}

// GenerationErrorScore is the distinguished score name emitted when an
// adapter invocation fails for a dataset item (§4.2, §7). Its presence
// causes JUnit sink test cases to be marked failed regardless of any
// other score for the same item.
const GenerationErrorScore = "generation_error"

// EvalResult is the unified record of one evaluation run: the full set of
// per-item scores plus the identifiers needed to reproduce, compare, and
// gate on it.
//
// EvalID is deterministic: hash(name, sorted(scorer eval ids), dataset id).
// RunID is fresh on every execution, even when EvalID repeats (I-nothing,
// see ComputeEvalID). This lets two runs of the "same" evaluation be
// compared against each other by EvalID while remaining individually
// addressable by RunID.
type EvalResult struct {
	EvalID    string    `json:"eval_id"`
	RunID     string    `json:"run_id"`
	Name      string    `json:"name"`
	DatasetID string    `json:"dataset_id"`
	ScorerIDs []string  `json:"scorer_ids"`
	Scores    []Score   `json:"scores"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
	Error     string    `json:"error,omitempty"`
	// Metadata carries run-level data attached after scoring, notably
	// aggregate_metrics (§4.5 step 5) when a tracing adapter is configured.
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// TaskState is the closed set of states in the task lifecycle (I4).
type TaskState string

const (
	TaskPending   TaskState = "pending"
	TaskRunning   TaskState = "running"
	TaskCompleted TaskState = "completed"
	TaskFailed    TaskState = "failed"
	TaskCancelled TaskState = "cancelled"
)

// validTransitions enumerates the only legal state transitions for a task.
// Terminal states (completed, failed, cancelled) have no outgoing edges.
var validTransitions = map[TaskState][]TaskState{
	TaskPending: {TaskRunning, TaskCancelled},
	TaskRunning: {TaskCompleted, TaskFailed, TaskCancelled},
}

// CanTransition reports whether from -> to is a legal transition.
func CanTransition(from, to TaskState) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether s has no outgoing transitions.
func IsTerminal(s TaskState) bool {
	_, ok := validTransitions[s]
	return !ok
}

// Task is a durable unit of work tracked by the task manager: one
// evaluation run request, persisted so the worker pool can pick it up,
// and so its outcome survives a process restart.
type Task struct {
	ID          ulid.ULID              `json:"id"`
	State       TaskState              `json:"state"`
	EvalName    string                 `json:"eval_name"`
	DatasetID   string                 `json:"dataset_id"`
	AdapterName string                 `json:"adapter_name"`
	ScorerNames []string               `json:"scorer_names"`
	SinkNames   []string               `json:"sink_names"`
	Params      map[string]interface{} `json:"params,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
	StartedAt   *time.Time             `json:"started_at,omitempty"`
	EndedAt     *time.Time             `json:"ended_at,omitempty"`
}

// TaskTouch carries the timestamp fields a state transition may set,
// threaded through TaskStore.Transition so the repository layer can
// apply them in the same update as the CAS state change.
type TaskTouch struct {
	StartedAt *time.Time
	EndedAt   *time.Time
}

// TaskResult is the outcome recorded against a completed or failed task
// (§3, §6 "task_results"). ExecutionTimeSeconds is wall-clock elapsed
// time between the task's started_at and ended_at timestamps.
type TaskResult struct {
	TaskID               ulid.ULID              `json:"task_id"`
	EvalResult           *EvalResult            `json:"eval_result,omitempty"`
	ExecutionTimeSeconds float64                `json:"execution_time_seconds"`
	Error                string                 `json:"error,omitempty"`
	Metadata             map[string]interface{} `json:"metadata,omitempty"`
}
