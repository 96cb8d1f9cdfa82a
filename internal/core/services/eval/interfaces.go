package eval

import (
	"context"

	evaldomain "evalforge/internal/core/domain/eval"
)

// Adapter invokes the system under test for a single dataset item and
// returns its response as a flat variable map consumable by scorers and
// sinks (e.g. "output", "latency_ms", "tokens").
type Adapter interface {
	Name() string
	Invoke(ctx context.Context, item evaldomain.DatasetItem) (map[string]interface{}, error)
}

// Scorer computes one or more Scores for a dataset item given the
// adapter's response variables.
type Scorer interface {
	Name() string
	Score(ctx context.Context, item evaldomain.DatasetItem, response map[string]interface{}) ([]evaldomain.Score, error)
}

// Sink receives individual Scores and whole EvalResults, buffering until
// Flush (§4.4). The engine calls EmitRun exactly once per sink followed
// by Flush exactly once (§5); EmitScore is available to callers that
// want per-item streaming (e.g. the guardrail engine) without a full run.
// Sinks are invoked in isolation from one another: one sink's failure
// never prevents another sink from receiving the result (P5).
type Sink interface {
	Name() string
	EmitScore(ctx context.Context, score evaldomain.Score) error
	EmitRun(ctx context.Context, result *evaldomain.EvalResult) error
	Flush(ctx context.Context) error
}

// DatasetLoader reads dataset items from a source (file, generator,
// trace store) identified by datasetID.
type DatasetLoader interface {
	Load(ctx context.Context, datasetID string) ([]evaldomain.DatasetItem, error)
}
