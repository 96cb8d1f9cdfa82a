// Package eval persists the task/eval/run/score tables described in
// spec §6 via GORM, the same ORM the teacher repo uses for its
// Postgres-backed domain stores.
package eval

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/datatypes"

	"evalforge/pkg/ulid"
)

// TaskModel is the GORM row for the "tasks" table (§6): one durable
// evaluation-run request, transitioned by the task manager and consumed
// by the worker pool. Mirrors domain/eval.Task field for field; the
// scorer and sink name lists are Postgres text[] columns and Params is a
// JSON column.
type TaskModel struct {
	ID          ulid.ULID      `gorm:"type:char(26);primaryKey"`
	State       string         `gorm:"column:state;index:idx_tasks_state_created"`
	EvalName    string         `gorm:"column:eval_name;index"`
	DatasetID   string         `gorm:"column:dataset_id"`
	AdapterName string         `gorm:"column:adapter_name"`
	ScorerNames pq.StringArray `gorm:"column:scorer_names;type:text[]"`
	SinkNames   pq.StringArray `gorm:"column:sink_names;type:text[]"`
	Params      datatypes.JSON `gorm:"column:params"`
	CreatedAt   time.Time      `gorm:"column:created_at;index:idx_tasks_state_created"`
	UpdatedAt   time.Time      `gorm:"column:updated_at"`
	StartedAt   *time.Time     `gorm:"column:started_at"`
	EndedAt     *time.Time     `gorm:"column:ended_at"`
}

func (TaskModel) TableName() string { return "tasks" }

// TaskResultModel is the GORM row for "task_results" (§6): the
// engine outcome recorded against a completed or failed task, keyed
// 1:1 with its owning task.
type TaskResultModel struct {
	TaskID               ulid.ULID      `gorm:"type:char(26);primaryKey;column:task_id"`
	EvalResult           datatypes.JSON `gorm:"column:eval_result"`
	ExecutionTimeSeconds float64        `gorm:"column:execution_time_seconds"`
	Error                string         `gorm:"column:error"`
	Meta                 datatypes.JSON `gorm:"column:meta"`
	CreatedAt            time.Time      `gorm:"column:created_at"`
}

func (TaskResultModel) TableName() string { return "task_results" }

// EvalModel is the GORM row for "evals": a named, versioned evaluation
// configuration (dataset + scorers), distinct from any one run of it.
type EvalModel struct {
	ID             ulid.ULID      `gorm:"type:char(26);primaryKey"`
	Name           string         `gorm:"column:name;uniqueIndex"`
	Description    string         `gorm:"column:description"`
	DatasetConfig  datatypes.JSON `gorm:"column:dataset_config"`
	ScorersConfig  datatypes.JSON `gorm:"column:scorers_config"`
	CreatedAt      time.Time      `gorm:"column:created_at"`
	UpdatedAt      time.Time      `gorm:"column:updated_at"`
	Meta           datatypes.JSON `gorm:"column:meta"`
}

func (EvalModel) TableName() string { return "evals" }

// RunModel is the GORM row for "runs": one execution of an Eval,
// identified independently by RunID (I1) while sharing EvalID with
// sibling runs of the same configuration.
type RunModel struct {
	ID        ulid.ULID      `gorm:"type:char(26);primaryKey"`
	EvalID    string         `gorm:"column:eval_id;index"`
	RunID     string         `gorm:"column:run_id;uniqueIndex"`
	DatasetID string         `gorm:"column:dataset_id"`
	Model     string         `gorm:"column:model"`
	CreatedAt time.Time      `gorm:"column:created_at"`
	Meta      datatypes.JSON `gorm:"column:meta"`
}

func (RunModel) TableName() string { return "runs" }

// ScoreModel is the GORM row for "scores": one scorer's verdict on one
// dataset item within one run.
type ScoreModel struct {
	ID            ulid.ULID      `gorm:"type:char(26);primaryKey"`
	RunID         string         `gorm:"column:run_id;index"`
	Name          string         `gorm:"column:name"`
	Value         float64        `gorm:"column:value"`
	EvalID        string         `gorm:"column:eval_id"`
	Comment       string         `gorm:"column:comment"`
	Meta          datatypes.JSON `gorm:"column:meta"`
	TraceID       string         `gorm:"column:trace_id"`
	ObservationID string         `gorm:"column:observation_id"`
	CreatedAt     time.Time      `gorm:"column:created_at"`
}

func (ScoreModel) TableName() string { return "scores" }
