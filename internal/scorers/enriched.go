package scorers

import (
	"context"

	evaldomain "evalforge/internal/core/domain/eval"
	evalsvc "evalforge/internal/core/services/eval"
)

// EnrichedOutputScorer wraps another Scorer, detecting the SSE-streaming
// adapter's enriched-output envelope (internal/adapters.SSEAdapter),
// forwarding only the underlying final_output to the wrapped scorer, and
// promoting the adapter-captured latency/token/tool data into the
// returned Score's metadata (§4.3 "enriched-output wrapper", §9).
//
// Wrapping a plain scorer in this type is the only change needed to make
// it enriched-output-aware; the wrapped scorer itself never has to know
// about the envelope.
type EnrichedOutputScorer struct {
	wrapped evalsvc.Scorer
}

func NewEnrichedOutputScorer(wrapped evalsvc.Scorer) *EnrichedOutputScorer {
	return &EnrichedOutputScorer{wrapped: wrapped}
}

func (s *EnrichedOutputScorer) Name() string { return s.wrapped.Name() }

func (s *EnrichedOutputScorer) Score(ctx context.Context, item evaldomain.DatasetItem, response map[string]interface{}) ([]evaldomain.Score, error) {
	inner := response
	var metrics map[string]interface{}
	var toolsCalled interface{}

	if kind, ok := response["_kind"].(string); ok && kind != "" {
		inner = map[string]interface{}{"output": response["final_output"]}
		if m, ok := response["metrics"].(map[string]interface{}); ok {
			metrics = m
		}
		toolsCalled = response["tools_called"]
	}

	scores, err := s.wrapped.Score(ctx, item, inner)
	if err != nil {
		return nil, err
	}

	for i := range scores {
		if scores[i].Metadata == nil {
			scores[i].Metadata = map[string]interface{}{}
		}
		for k, v := range metrics {
			scores[i].Metadata[k] = v
		}
		if toolsCalled != nil {
			scores[i].Metadata["tool_calls"] = toolsCalled
		}
	}
	return scores, nil
}
