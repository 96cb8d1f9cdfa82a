package eval

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	evaldomain "evalforge/internal/core/domain/eval"
	evalsvc "evalforge/internal/core/services/eval"
	apperrors "evalforge/pkg/errors"
)

// activityRetry describes one activity's retry policy (§4.7), translated
// from the original's temporalio.common.RetryPolicy into a
// cenkalti/backoff/v4 ExponentialBackOff — the retry library the rest of
// the example pack reaches for where no workflow engine is available
// (braintrustdata-braintrust-sdk-go).
type activityRetry struct {
	initialInterval time.Duration
	multiplier      float64
	maxInterval     time.Duration
	maxAttempts     uint64
	timeout         time.Duration
	fatal           bool // if false, exhausting retries logs and continues
}

func (r activityRetry) backOff() backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = r.initialInterval
	if r.multiplier > 0 {
		eb.Multiplier = r.multiplier
	}
	if r.maxInterval > 0 {
		eb.MaxInterval = r.maxInterval
	}
	eb.MaxElapsedTime = 0
	if r.maxAttempts <= 1 {
		return &backoff.StopBackOff{}
	}
	// WithMaxRetries counts retries after the first call.
	return backoff.WithMaxRetries(eb, r.maxAttempts-1)
}

// Retry policies per §4.7: load_dataset gets 3 attempts at a flat 1s
// interval; run_eval gets 3 attempts with exponential backoff from 5s,
// doubling, capped at 5 minutes, inside a 2-hour activity timeout;
// emit_results gets 2 attempts and never fails the workflow.
var (
	loadDatasetRetry = activityRetry{
		initialInterval: time.Second,
		multiplier:      1,
		maxAttempts:     3,
		timeout:         5 * time.Minute,
		fatal:           true,
	}
	runEvalRetry = activityRetry{
		initialInterval: 5 * time.Second,
		multiplier:      2,
		maxInterval:     5 * time.Minute,
		maxAttempts:     3,
		timeout:         2 * time.Hour,
		fatal:           true,
	}
	emitResultsRetry = activityRetry{
		initialInterval: time.Second,
		multiplier:      1,
		maxAttempts:     2,
		timeout:         5 * time.Minute,
		fatal:           false,
	}
)

// WorkflowConfig is one eval_workflow invocation's configuration,
// mirroring the Python original's per-run config dict (§4.7).
type WorkflowConfig struct {
	DatasetID        string
	Models           []string
	AdapterName      string
	ScorerNames      []string
	SinkNames        []string
	ConcurrencyLimit int
}

// Workflow runs a durable, retrying evaluation pipeline on top of the
// Engine: load_dataset, run_eval, and emit_results as three activities
// with independent retry policies, each re-attempted with backoff before
// the workflow gives up (§4.7). Unlike a real Temporal workflow this
// executes in-process rather than being durably replayed across process
// restarts; it reproduces the original's activity/retry structure using
// the stack this repo actually carries.
type Workflow struct {
	loader evalsvc.DatasetLoader
	engine *evalsvc.Engine
	logger *slog.Logger
}

func NewWorkflow(loader evalsvc.DatasetLoader, engine *evalsvc.Engine, logger *slog.Logger) *Workflow {
	return &Workflow{loader: loader, engine: engine, logger: logger}
}

// RunEval executes the eval_workflow: load dataset, run eval, emit
// results (best-effort). run_eval calls the Engine with no sinks; when
// cfg.SinkNames is non-empty, emit_results resolves those sinks and emits
// the finished result as its own activity, so each of §4.7's three
// activity boundaries carries its own retry policy.
func (w *Workflow) RunEval(ctx context.Context, name string, cfg WorkflowConfig) (*evaldomain.EvalResult, error) {
	model := ""
	if len(cfg.Models) > 0 {
		model = cfg.Models[0]
	}

	dataset, err := w.runActivity(ctx, "load_dataset", loadDatasetRetry, func(ctx context.Context) (interface{}, error) {
		return w.loader.Load(ctx, cfg.DatasetID)
	})
	if err != nil {
		return nil, apperrors.NewErrorWithCode(apperrors.CodeWorkflowActivityFailed, "load_dataset: "+err.Error())
	}
	items := dataset.([]evaldomain.DatasetItem)
	w.logger.Info("workflow loaded dataset", "eval_name", name, "items", len(items))

	runResult, err := w.runActivity(ctx, "run_eval", runEvalRetry, func(ctx context.Context) (interface{}, error) {
		return w.engine.Run(ctx, evalsvc.RunRequest{
			Name:        name,
			DatasetID:   cfg.DatasetID,
			AdapterName: cfg.AdapterName,
			ScorerNames: cfg.ScorerNames,
			SinkNames:   nil, // emitted as its own activity below
			Model:       model,
			Dataset:     items,
		})
	})
	if err != nil {
		return nil, apperrors.NewErrorWithCode(apperrors.CodeWorkflowActivityFailed, "run_eval: "+err.Error())
	}
	result := runResult.(*evaldomain.EvalResult)
	w.logger.Info("workflow completed run", "eval_name", name, "run_id", result.RunID)

	if len(cfg.SinkNames) > 0 {
		_, err := w.runActivity(ctx, "emit_results", emitResultsRetry, func(ctx context.Context) (interface{}, error) {
			sinks, err := w.engine.ResolveSinksForEmit(ctx, cfg.SinkNames)
			if err != nil {
				return nil, err
			}
			return nil, w.engine.EmitResult(ctx, sinks, result)
		})
		if err != nil {
			// emit_results is non-fatal (§4.7): log and return the run anyway.
			w.logger.Warn("emit_results activity exhausted retries", "eval_name", name, "error", err)
		}
	}

	return result, nil
}

// RunMultiModel fans RunEval out across every configured model, one
// child workflow per model with deterministic id "<name>-<model>"
// (§4.7). Child workflows run sequentially, matching the original's
// comment that parallelization was left for later.
func (w *Workflow) RunMultiModel(ctx context.Context, name string, cfg WorkflowConfig) (map[string]*evaldomain.EvalResult, error) {
	models := cfg.Models
	if len(models) == 0 {
		models = []string{"default"}
	}

	results := make(map[string]*evaldomain.EvalResult, len(models))
	for _, model := range models {
		childID := fmt.Sprintf("%s-%s", name, model)
		childCfg := cfg
		childCfg.Models = []string{model}

		w.logger.Info("workflow dispatching child", "child_id", childID)
		result, err := w.RunEval(ctx, name, childCfg)
		if err != nil {
			return results, fmt.Errorf("child workflow %s: %w", childID, err)
		}
		results[childID] = result
	}
	return results, nil
}

// runActivity retries fn per policy's attempt count and backoff, bounded by
// policy.timeout, and returns the last error if every attempt fails.
func (w *Workflow) runActivity(ctx context.Context, activityName string, policy activityRetry, fn func(context.Context) (interface{}, error)) (interface{}, error) {
	actCtx := ctx
	var cancel context.CancelFunc
	if policy.timeout > 0 {
		actCtx, cancel = context.WithTimeout(ctx, policy.timeout)
		defer cancel()
	}

	var result interface{}
	attempt := 0
	operation := func() error {
		attempt++
		var err error
		result, err = fn(actCtx)
		if err != nil {
			w.logger.Warn("activity attempt failed", "activity", activityName, "attempt", attempt, "error", err)
		}
		return err
	}

	err := backoff.Retry(operation, backoff.WithContext(policy.backOff(), actCtx))
	if err != nil {
		return nil, err
	}
	return result, nil
}
