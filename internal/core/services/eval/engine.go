package eval

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	evaldomain "evalforge/internal/core/domain/eval"
	"evalforge/pkg/ulid"
)

// EngineConfig carries the evaluation engine's tunables (§4.5/§5).
type EngineConfig struct {
	// ConcurrencyLimit bounds how many dataset items are scored at once.
	// Default 5, lower bound 1 (§5).
	ConcurrencyLimit int
}

// Engine runs one evaluation: it loads a dataset, invokes an adapter and
// a set of scorers per item under a bounded-concurrency semaphore, and
// fans the resulting EvalResult out to every configured sink.
//
// The engine never converts a per-item adapter or scorer failure into a
// run-level error (§7): those become data (a generation_error or
// zero-valued Score) and scoring continues. Only a fatal configuration
// error (an unknown adapter/scorer/sink name) or a dataset-load failure
// upstream of Run aborts the run itself.
type Engine struct {
	registries *Registries
	logger     *slog.Logger
	cfg        EngineConfig
	tracing    TracingAdapter
	enrichWrap func(Scorer) Scorer
}

// EnrichedAdapter is implemented by adapters whose Invoke response is a
// tagged enriched-output envelope (§4.2 "SSE-streaming", §9) rather than a
// plain variable map. The engine wraps every resolved scorer through
// enrichWrap for such an adapter, so a wrapped scorer never has to know
// about the envelope itself.
type EnrichedAdapter interface {
	Enriched() bool
}

// TracingAdapter resolves cost/token data per trace for run-level
// aggregate metrics (§4.5 step 5, §6 "Tracing adapter").
type TracingAdapter interface {
	GetCostData(ctx context.Context, traceID string) (CostData, error)
}

// CostData is the per-trace cost/token summary a tracing adapter reports.
type CostData struct {
	InputTokens  int64
	OutputTokens int64
	TotalTokens  int64
	Cost         float64
	Provider     string
	Model        string
}

func NewEngine(registries *Registries, logger *slog.Logger, cfg EngineConfig) *Engine {
	if cfg.ConcurrencyLimit <= 0 {
		cfg.ConcurrencyLimit = 5
	}
	return &Engine{registries: registries, logger: logger, cfg: cfg}
}

// WithTracingAdapter attaches an optional tracing adapter used to compute
// run-level aggregate_metrics (§4.5 step 5). Returns the engine for
// chaining at construction time.
func (e *Engine) WithTracingAdapter(t TracingAdapter) *Engine {
	e.tracing = t
	return e
}

// WithEnrichedOutputWrapper registers the wrapper applied to every
// resolved scorer when the selected adapter implements EnrichedAdapter
// and reports Enriched() == true (§4.3 "enriched-output wrapper", §9).
// Supplied by the app layer (wrapping internal/scorers.EnrichedOutputScorer)
// so this package never needs to import the scorers package.
func (e *Engine) WithEnrichedOutputWrapper(wrap func(Scorer) Scorer) *Engine {
	e.enrichWrap = wrap
	return e
}

// RunRequest names the components and dataset an evaluation run resolves
// and executes.
type RunRequest struct {
	Name        string
	DatasetID   string
	AdapterName string
	ScorerNames []string
	SinkNames   []string
	Model       string
	Dataset     []evaldomain.DatasetItem
}

// Run executes the full evaluation algorithm described in §4.5:
//  1. resolve eval_id deterministically from name/scorers/dataset
//  2. mint a fresh run_id for this execution
//  3. resolve the adapter, scorers, and sinks by name
//  4. invoke the adapter and every scorer per dataset item, bounded by
//     a counting semaphore of size ConcurrencyLimit; a DatasetItem whose
//     Output is already populated skips the adapter (offline scoring)
//  5. collect every item's scores under a single mutex
//  6. compute aggregate_metrics when a tracing adapter is configured
//  7. emit the result to every sink in isolation, so one sink's failure
//     never prevents another sink from receiving the result
func (e *Engine) Run(ctx context.Context, req RunRequest) (*evaldomain.EvalResult, error) {
	evalID := ComputeEvalID(req.Name, req.ScorerNames, req.DatasetID)
	runID := ulid.New().String()

	result := &evaldomain.EvalResult{
		EvalID:    evalID,
		RunID:     runID,
		Name:      req.Name,
		DatasetID: req.DatasetID,
		ScorerIDs: req.ScorerNames,
		StartedAt: timeNow(),
	}

	adapter, err := e.registries.ResolveAdapter(req.AdapterName)
	if err != nil {
		return e.fail(result, err)
	}
	scorers, err := e.registries.ResolveScorers(req.ScorerNames)
	if err != nil {
		return e.fail(result, err)
	}
	sinks, err := e.registries.ResolveSinks(req.SinkNames)
	if err != nil {
		return e.fail(result, err)
	}

	if enriched, ok := adapter.(EnrichedAdapter); ok && enriched.Enriched() && e.enrichWrap != nil {
		wrapped := make([]Scorer, len(scorers))
		for i, s := range scorers {
			wrapped[i] = e.enrichWrap(s)
		}
		scorers = wrapped
	}

	result.Scores = e.scoreDataset(ctx, adapter, scorers, req.Dataset, req.Model)
	result.EndedAt = timeNow()

	if e.tracing != nil {
		result.Metadata = e.aggregateMetrics(ctx, result.Scores)
	}

	e.emitToSinks(ctx, sinks, result)

	return result, nil
}

// ResolveSinksForEmit resolves sink names for callers that emit a result
// outside of Run itself, such as the workflow layer's separate
// emit_results activity (§4.7).
func (e *Engine) ResolveSinksForEmit(ctx context.Context, names []string) ([]Sink, error) {
	return e.registries.ResolveSinks(names)
}

// EmitResult fans result out to sinks the same way Run does internally,
// exposed so the workflow layer can retry emission as its own activity.
func (e *Engine) EmitResult(ctx context.Context, sinks []Sink, result *evaldomain.EvalResult) error {
	e.emitToSinks(ctx, sinks, result)
	return nil
}

func (e *Engine) fail(result *evaldomain.EvalResult, err error) (*evaldomain.EvalResult, error) {
	result.EndedAt = timeNow()
	result.Error = err.Error()
	return result, err
}

// scoreDataset runs one unit of work per item under a counting semaphore
// of capacity ConcurrencyLimit (§5 P2). Units of work are independent:
// no item's failure affects another, and the returned order is
// unspecified (§4.5 "Ordering", O1).
func (e *Engine) scoreDataset(ctx context.Context, adapter Adapter, scorers []Scorer, items []evaldomain.DatasetItem, model string) []evaldomain.Score {
	sem := make(chan struct{}, e.cfg.ConcurrencyLimit)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var scores []evaldomain.Score

	for _, item := range items {
		item := item

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return scores
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			itemScores := e.scoreItem(ctx, adapter, scorers, item, model)

			mu.Lock()
			scores = append(scores, itemScores...)
			mu.Unlock()
		}()
	}

	wg.Wait()
	return scores
}

// scoreItem runs the adapter (unless the item already carries a
// pre-computed Output) followed by every scorer, isolating failures at
// each step into data instead of propagating them (§4.5 step 3, §7):
//
//   - an adapter failure yields a single generation_error Score and no
//     scorer runs for this item;
//   - a scorer failure yields a zero-valued Score naming that scorer,
//     and the remaining scorers for the item still run.
func (e *Engine) scoreItem(ctx context.Context, adapter Adapter, scorers []Scorer, item evaldomain.DatasetItem, model string) []evaldomain.Score {
	response := item.Output
	var traceID, observationID string

	if response == nil {
		resp, err := adapter.Invoke(ctx, item)
		if err != nil {
			e.logger.Warn("adapter invocation failed", "item_id", item.ID, "adapter", adapter.Name(), "error", err)
			return []evaldomain.Score{{
				ItemID: item.ID,
				Name:   evaldomain.GenerationErrorScore,
				Value:  0,
				Passed: false,
				Reason: err.Error(),
				Metadata: map[string]interface{}{
					"dataset_item_id": item.ID,
					"test_id":         item.ID,
				},
			}}
		}
		response = resp
		if tid, ok := response["trace_id"].(string); ok {
			traceID = tid
		}
		if oid, ok := response["observation_id"].(string); ok {
			observationID = oid
		}
	}

	itemScores := make([]evaldomain.Score, 0, len(scorers))
	for _, scorer := range scorers {
		s, err := e.runScorer(ctx, scorer, item, response, model)
		if err != nil {
			e.logger.Warn("scorer failed", "item_id", item.ID, "scorer", scorer.Name(), "error", err)
			s = []evaldomain.Score{{
				ItemID: item.ID,
				Name:   scorer.Name(),
				Value:  0,
				Passed: false,
				Reason: err.Error(),
				Metadata: map[string]interface{}{
					"dataset_item_id": item.ID,
					"test_id":         item.ID,
				},
			}}
		}
		for i := range s {
			if s[i].ItemID == "" {
				s[i].ItemID = item.ID
			}
			if s[i].TraceID == "" {
				s[i].TraceID = traceID
			}
			if s[i].ObservationID == "" {
				s[i].ObservationID = observationID
			}
			if s[i].Metadata == nil {
				s[i].Metadata = map[string]interface{}{}
			}
			s[i].Metadata["dataset_item_id"] = item.ID
			s[i].Metadata["test_id"] = item.ID
			if model != "" {
				s[i].Metadata["model"] = model
			}
		}
		itemScores = append(itemScores, s...)
	}
	return itemScores
}

// runScorer recovers a panicking scorer the same way a thrown exception
// is caught in the source implementation, so one malformed scorer can
// never take down the unit of work around it.
func (e *Engine) runScorer(ctx context.Context, scorer Scorer, item evaldomain.DatasetItem, response map[string]interface{}, model string) (scores []evaldomain.Score, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scorer panic: %v", r)
		}
	}()
	return scorer.Score(ctx, item, response)
}

// aggregateMetrics computes run-level aggregate_metrics (§4.5 step 5):
// accuracy is the mean of numeric score values, cost/token fields are
// summed across every distinct trace_id referenced by a score.
// Non-finite score values are excluded from the mean and counted
// separately, and a mean with no finite inputs is reported as NaN.
func (e *Engine) aggregateMetrics(ctx context.Context, scores []evaldomain.Score) map[string]interface{} {
	var sum float64
	var finite, failed int
	seenTraces := map[string]bool{}
	var inputTokens, outputTokens int64
	var cost float64

	for _, s := range scores {
		if math.IsNaN(s.Value) || math.IsInf(s.Value, 0) {
			failed++
		} else {
			sum += s.Value
			finite++
		}

		if s.TraceID == "" || seenTraces[s.TraceID] {
			continue
		}
		seenTraces[s.TraceID] = true
		data, err := e.tracing.GetCostData(ctx, s.TraceID)
		if err != nil {
			e.logger.Warn("tracing adapter cost lookup failed", "trace_id", s.TraceID, "error", err)
			continue
		}
		inputTokens += data.InputTokens
		outputTokens += data.OutputTokens
		cost += data.Cost
	}

	accuracy := math.NaN()
	if finite > 0 {
		accuracy = sum / float64(finite)
	}

	return map[string]interface{}{
		"aggregate_metrics": map[string]interface{}{
			"accuracy":      accuracy,
			"cost":          cost,
			"input_tokens":  inputTokens,
			"output_tokens": outputTokens,
			"failed":        failed,
		},
	}
}

// emitToSinks fans the result out to every sink independently; a sink
// panic or error is logged and isolated, never propagated to siblings
// (§4.4, P5).
func (e *Engine) emitToSinks(ctx context.Context, sinks []Sink, result *evaldomain.EvalResult) {
	var wg sync.WaitGroup
	for _, sink := range sinks {
		sink := sink
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					e.logger.Error("sink panicked", "sink", sink.Name(), "panic", r)
				}
			}()
			if err := sink.EmitRun(ctx, result); err != nil {
				e.logger.Error("sink emit_run failed", "sink", sink.Name(), "error", err)
			}
			if err := sink.Flush(ctx); err != nil {
				e.logger.Error("sink flush failed", "sink", sink.Name(), "error", err)
			}
		}()
	}
	wg.Wait()
}

// timeNow is a seam so tests can stub wall-clock time; production always
// uses time.Now.
var timeNow = func() time.Time { return time.Now() }
