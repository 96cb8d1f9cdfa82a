package scorers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	evaldomain "evalforge/internal/core/domain/eval"
)

// passthroughScorer returns response["output"] as its score value's reason,
// so tests can assert exactly what the wrapped scorer received.
type passthroughScorer struct{}

func (passthroughScorer) Name() string { return "passthrough" }

func (passthroughScorer) Score(ctx context.Context, item evaldomain.DatasetItem, response map[string]interface{}) ([]evaldomain.Score, error) {
	out, _ := response["output"].(string)
	return []evaldomain.Score{{Name: "passthrough", Value: 1, Passed: true, Reason: out}}, nil
}

func TestEnrichedOutputScorer_UnwrapsEnvelopeAndPromotesMetrics(t *testing.T) {
	wrapped := NewEnrichedOutputScorer(passthroughScorer{})

	response := map[string]interface{}{
		"_kind":        "sse_enriched",
		"final_output": "the answer",
		"tools_called": []map[string]interface{}{{"name": "lookup"}},
		"metrics": map[string]interface{}{
			"latency_ms":        int64(42),
			"completion_tokens": 10,
		},
	}

	scores, err := wrapped.Score(context.Background(), evaldomain.DatasetItem{ID: "t1"}, response)
	require.NoError(t, err)
	require.Len(t, scores, 1)

	assert.Equal(t, "the answer", scores[0].Reason, "wrapped scorer must see unwrapped final_output as response[\"output\"]")
	assert.Equal(t, int64(42), scores[0].Metadata["latency_ms"])
	assert.Equal(t, 10, scores[0].Metadata["completion_tokens"])
	assert.NotNil(t, scores[0].Metadata["tool_calls"])
}

func TestEnrichedOutputScorer_PlainResponsePassesThrough(t *testing.T) {
	wrapped := NewEnrichedOutputScorer(passthroughScorer{})

	response := map[string]interface{}{"output": "plain"}
	scores, err := wrapped.Score(context.Background(), evaldomain.DatasetItem{ID: "t1"}, response)
	require.NoError(t, err)
	require.Len(t, scores, 1)

	assert.Equal(t, "plain", scores[0].Reason)
	assert.Nil(t, scores[0].Metadata["latency_ms"])
}

func TestEnrichedOutputScorer_NameDelegatesToWrapped(t *testing.T) {
	wrapped := NewEnrichedOutputScorer(passthroughScorer{})
	assert.Equal(t, "passthrough", wrapped.Name())
}
