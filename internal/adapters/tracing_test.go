package adapters

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	evaldomain "evalforge/internal/core/domain/eval"
)

func TestMemoryTraceStore_RecordScoreTracksByTraceID(t *testing.T) {
	store := NewMemoryTraceStore()

	require.NoError(t, store.RecordScore(context.Background(), evaldomain.Score{ItemID: "t1", Name: "exact", TraceID: "trace-1"}))
	require.NoError(t, store.RecordScore(context.Background(), evaldomain.Score{ItemID: "t2", Name: "exact", TraceID: "trace-1"}))
	require.NoError(t, store.RecordScore(context.Background(), evaldomain.Score{ItemID: "t3", Name: "exact", TraceID: "trace-2"}))

	assert.Len(t, store.ScoresForTrace("trace-1"), 2)
	assert.Len(t, store.ScoresForTrace("trace-2"), 1)
	assert.Empty(t, store.ScoresForTrace("trace-missing"))
}

func TestTracingAdapter_GetCostDataReadsSemanticConventionKeys(t *testing.T) {
	store := NewMemoryTraceStore()
	store.Put(TraceData{
		TraceID: "trace-1",
		Attributes: map[string]interface{}{
			"llm.token_count.input":  int64(100),
			"llm.token_count.output": int64(50),
			"llm.cost":               0.002,
			"llm.provider":           "openai",
			"llm.model":              "gpt-4o-mini",
		},
	})
	adapter := NewTracingAdapter(store)

	data, err := adapter.GetCostData(context.Background(), "trace-1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), data.InputTokens)
	assert.Equal(t, int64(50), data.OutputTokens)
	assert.Equal(t, 0.002, data.Cost)
	assert.Equal(t, "openai", data.Provider)
}

func TestTracingAdapter_ListSpansSatisfiesTraceSource(t *testing.T) {
	store := NewMemoryTraceStore()
	store.Put(TraceData{TraceID: "trace-1", Input: map[string]interface{}{"prompt": "p"}, Output: map[string]interface{}{"output": "o"}})
	adapter := NewTracingAdapter(store)

	records, err := adapter.ListSpans(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "trace-1", records[0].SpanID)
}
