package sinks

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	evaldomain "evalforge/internal/core/domain/eval"
)

// recordingBackend is an in-memory ObservabilityBackend for tests.
type recordingBackend struct {
	mu      sync.Mutex
	scores  []evaldomain.Score
	failing bool
}

func (b *recordingBackend) RecordScore(ctx context.Context, score evaldomain.Score) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failing {
		return assert.AnError
	}
	b.scores = append(b.scores, score)
	return nil
}

func TestObservabilitySink_EmitScoreSkipsWithoutTraceID(t *testing.T) {
	backend := &recordingBackend{}
	sink := NewObservabilitySink(backend)

	require.NoError(t, sink.EmitScore(context.Background(), evaldomain.Score{ItemID: "t1", Name: "exact"}))
	require.NoError(t, sink.Flush(context.Background()))

	assert.Empty(t, backend.scores, "a score with no trace_id has nothing to link to and must be dropped")
}

func TestObservabilitySink_EmitRunForwardsTracedScoresOnFlush(t *testing.T) {
	backend := &recordingBackend{}
	sink := NewObservabilitySink(backend)

	result := &evaldomain.EvalResult{
		Scores: []evaldomain.Score{
			{ItemID: "t1", Name: "exact", TraceID: "trace-1"},
			{ItemID: "t2", Name: "exact"},
		},
	}
	require.NoError(t, sink.EmitRun(context.Background(), result))
	assert.Empty(t, backend.scores, "Flush, not EmitRun, delivers scores to the backend")

	require.NoError(t, sink.Flush(context.Background()))
	require.Len(t, backend.scores, 1)
	assert.Equal(t, "trace-1", backend.scores[0].TraceID)
}

func TestObservabilitySink_FlushReportsBackendFailure(t *testing.T) {
	backend := &recordingBackend{failing: true}
	sink := NewObservabilitySink(backend)

	require.NoError(t, sink.EmitScore(context.Background(), evaldomain.Score{ItemID: "t1", Name: "exact", TraceID: "trace-1"}))
	assert.Error(t, sink.Flush(context.Background()))
}
