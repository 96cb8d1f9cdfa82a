package eval

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"

	evaldomain "evalforge/internal/core/domain/eval"
	"evalforge/internal/infrastructure/database"
	apperrors "evalforge/pkg/errors"
	"evalforge/pkg/ulid"
)

// TaskStore persists Task/TaskResult rows and enforces the lifecycle's
// legal transitions (I4) at the row level via a CAS-style update, so two
// workers racing to claim the same task never both win.
type TaskStore struct {
	db *gorm.DB
}

func NewTaskStore(db *gorm.DB) *TaskStore {
	return &TaskStore{db: db}
}

// Create inserts a new task in the pending state.
func (s *TaskStore) Create(ctx context.Context, task *evaldomain.Task) error {
	model, err := toTaskModel(task)
	if err != nil {
		return apperrors.WrapInternalError(err, "marshal task")
	}
	db := database.DBFromContext(ctx, s.db)
	if err := db.WithContext(ctx).Create(model).Error; err != nil {
		return apperrors.WrapInternalError(err, "create task")
	}
	return nil
}

// Get loads a task by id.
func (s *TaskStore) Get(ctx context.Context, id ulid.ULID) (*evaldomain.Task, error) {
	db := database.DBFromContext(ctx, s.db)
	var model TaskModel
	if err := db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewErrorWithCode(apperrors.CodeTaskNotFound, id.String())
		}
		return nil, apperrors.WrapInternalError(err, "get task")
	}
	return fromTaskModel(&model)
}

// ListPending returns up to limit tasks in the pending state, oldest
// first, for the worker pool to claim.
func (s *TaskStore) ListPending(ctx context.Context, limit int) ([]*evaldomain.Task, error) {
	db := database.DBFromContext(ctx, s.db)
	var models []TaskModel
	err := db.WithContext(ctx).
		Where("state = ?", string(evaldomain.TaskPending)).
		Order("created_at asc").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, apperrors.WrapInternalError(err, "list pending tasks")
	}
	tasks := make([]*evaldomain.Task, 0, len(models))
	for i := range models {
		t, err := fromTaskModel(&models[i])
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// Transition performs a compare-and-swap state transition: the UPDATE's
// WHERE clause requires the row's current state to equal `from`, so a
// losing racer's update affects zero rows instead of clobbering the
// winner's claim (I4, §4.6).
func (s *TaskStore) Transition(ctx context.Context, id ulid.ULID, from, to evaldomain.TaskState, touch func(*evaldomain.TaskTouch)) error {
	if !evaldomain.CanTransition(from, to) {
		return apperrors.NewErrorWithCode(apperrors.CodeInvalidTransition,
			string(from)+" -> "+string(to))
	}

	db := database.DBFromContext(ctx, s.db)
	now := time.Now().UTC()
	updates := map[string]interface{}{
		"state":      string(to),
		"updated_at": now,
	}

	var staged evaldomain.TaskTouch
	if touch != nil {
		touch(&staged)
	}
	if staged.StartedAt != nil {
		updates["started_at"] = staged.StartedAt
	}
	if staged.EndedAt != nil {
		updates["ended_at"] = staged.EndedAt
	}

	result := db.WithContext(ctx).Model(&TaskModel{}).
		Where("id = ? AND state = ?", id, string(from)).
		Updates(updates)
	if result.Error != nil {
		return apperrors.WrapInternalError(result.Error, "transition task")
	}
	if result.RowsAffected == 0 {
		// Either the task doesn't exist, or another worker already moved
		// it out of `from` — distinguish for a clearer error.
		var model TaskModel
		if err := db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.NewErrorWithCode(apperrors.CodeTaskNotFound, id.String())
			}
			return apperrors.WrapInternalError(err, "transition task")
		}
		if evaldomain.IsTerminal(evaldomain.TaskState(model.State)) {
			return apperrors.NewErrorWithCode(apperrors.CodeTaskAlreadyTerminal, model.State)
		}
		return apperrors.NewErrorWithCode(apperrors.CodeInvalidTransition,
			"task is in state "+model.State+", expected "+string(from))
	}
	return nil
}

// SaveResult records the outcome of a completed or failed task.
func (s *TaskStore) SaveResult(ctx context.Context, result *evaldomain.TaskResult) error {
	raw, err := json.Marshal(result.EvalResult)
	if err != nil {
		return apperrors.WrapInternalError(err, "marshal task result")
	}
	meta, err := json.Marshal(result.Metadata)
	if err != nil {
		return apperrors.WrapInternalError(err, "marshal task result metadata")
	}
	model := TaskResultModel{
		TaskID:               result.TaskID,
		EvalResult:           raw,
		ExecutionTimeSeconds: result.ExecutionTimeSeconds,
		Error:                result.Error,
		Meta:                 meta,
		CreatedAt:            time.Now().UTC(),
	}
	db := database.DBFromContext(ctx, s.db)
	err = db.WithContext(ctx).Save(&model).Error
	if err != nil {
		return apperrors.WrapInternalError(err, "save task result")
	}
	return nil
}

// GetResult loads the recorded outcome for a task, if any.
func (s *TaskStore) GetResult(ctx context.Context, taskID ulid.ULID) (*evaldomain.TaskResult, error) {
	db := database.DBFromContext(ctx, s.db)
	var model TaskResultModel
	if err := db.WithContext(ctx).First(&model, "task_id = ?", taskID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewErrorWithCode(apperrors.CodeTaskNotFound, taskID.String())
		}
		return nil, apperrors.WrapInternalError(err, "get task result")
	}
	result := &evaldomain.TaskResult{
		TaskID:               model.TaskID,
		ExecutionTimeSeconds: model.ExecutionTimeSeconds,
		Error:                model.Error,
	}
	if len(model.EvalResult) > 0 && string(model.EvalResult) != "null" {
		var evalResult evaldomain.EvalResult
		if err := json.Unmarshal(model.EvalResult, &evalResult); err != nil {
			return nil, apperrors.WrapInternalError(err, "unmarshal task result")
		}
		result.EvalResult = &evalResult
	}
	if len(model.Meta) > 0 && string(model.Meta) != "null" {
		if err := json.Unmarshal(model.Meta, &result.Metadata); err != nil {
			return nil, apperrors.WrapInternalError(err, "unmarshal task result metadata")
		}
	}
	return result, nil
}

func toTaskModel(task *evaldomain.Task) (*TaskModel, error) {
	params, err := json.Marshal(task.Params)
	if err != nil {
		return nil, err
	}
	return &TaskModel{
		ID:          task.ID,
		State:       string(task.State),
		EvalName:    task.EvalName,
		DatasetID:   task.DatasetID,
		AdapterName: task.AdapterName,
		ScorerNames: pq.StringArray(task.ScorerNames),
		SinkNames:   pq.StringArray(task.SinkNames),
		Params:      params,
		CreatedAt:   task.CreatedAt,
		UpdatedAt:   task.UpdatedAt,
		StartedAt:   task.StartedAt,
		EndedAt:     task.EndedAt,
	}, nil
}

func fromTaskModel(model *TaskModel) (*evaldomain.Task, error) {
	task := &evaldomain.Task{
		ID:          model.ID,
		State:       evaldomain.TaskState(model.State),
		EvalName:    model.EvalName,
		DatasetID:   model.DatasetID,
		AdapterName: model.AdapterName,
		ScorerNames: []string(model.ScorerNames),
		SinkNames:   []string(model.SinkNames),
		CreatedAt:   model.CreatedAt,
		UpdatedAt:   model.UpdatedAt,
		StartedAt:   model.StartedAt,
		EndedAt:     model.EndedAt,
	}
	if len(model.Params) > 0 && string(model.Params) != "null" {
		if err := json.Unmarshal(model.Params, &task.Params); err != nil {
			return nil, apperrors.WrapInternalError(err, "unmarshal task params")
		}
	}
	return task, nil
}
