package eval

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	evaldomain "evalforge/internal/core/domain/eval"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubAdapter counts invocations and optionally fails a named item.
type stubAdapter struct {
	calls    int
	failItem string
}

func (a *stubAdapter) Name() string { return "stub" }

func (a *stubAdapter) Invoke(ctx context.Context, item evaldomain.DatasetItem) (map[string]interface{}, error) {
	a.calls++
	if item.ID == a.failItem {
		return nil, assertErr
	}
	return map[string]interface{}{"output": "x"}, nil
}

var assertErr = io.ErrUnexpectedEOF

// exactScorer passes when response["output"] equals item.Expected["expected"].
type exactScorer struct{ failItem string }

func (s *exactScorer) Name() string { return "exact" }

func (s *exactScorer) Score(ctx context.Context, item evaldomain.DatasetItem, response map[string]interface{}) ([]evaldomain.Score, error) {
	if item.ID == s.failItem {
		return nil, assertErr
	}
	got, _ := response["output"].(string)
	want, _ := item.Expected["expected"].(string)
	value := 0.0
	if got == want {
		value = 1
	}
	return []evaldomain.Score{{Name: "exact", Value: value, Passed: value == 1}}, nil
}

func newTestEngine(t *testing.T, adapter Adapter, scorer Scorer, sink Sink) *Engine {
	t.Helper()
	registries := NewRegistries()
	registries.Adapters.Register(adapter.Name(), adapter)
	registries.Scorers.Register(scorer.Name(), scorer)
	if sink != nil {
		registries.Sinks.Register(sink.Name(), sink)
	}
	return NewEngine(registries, testLogger(), EngineConfig{ConcurrencyLimit: 2})
}

// collectingSink records every emitted run and flush call.
type collectingSink struct {
	runs    []*evaldomain.EvalResult
	flushed int
}

func (s *collectingSink) Name() string { return "collect" }
func (s *collectingSink) EmitScore(ctx context.Context, score evaldomain.Score) error { return nil }
func (s *collectingSink) EmitRun(ctx context.Context, result *evaldomain.EvalResult) error {
	s.runs = append(s.runs, result)
	return nil
}
func (s *collectingSink) Flush(ctx context.Context) error {
	s.flushed++
	return nil
}

func TestEngine_EmptyDataset(t *testing.T) {
	adapter := &stubAdapter{}
	scorer := &exactScorer{}
	sink := &collectingSink{}
	engine := newTestEngine(t, adapter, scorer, sink)

	result, err := engine.Run(context.Background(), RunRequest{
		Name: "empty", DatasetID: "ds", AdapterName: "stub", ScorerNames: []string{"exact"}, SinkNames: []string{"collect"},
	})

	require.NoError(t, err)
	assert.Empty(t, result.Scores)
	assert.Len(t, sink.runs, 1)
	assert.Equal(t, 1, sink.flushed)
}

func TestEngine_PerfectMatch(t *testing.T) {
	adapter := &stubAdapter{}
	scorer := &exactScorer{}
	engine := newTestEngine(t, adapter, scorer, nil)

	dataset := []evaldomain.DatasetItem{
		{ID: "t1", Input: map[string]interface{}{"prompt": "p"}, Expected: map[string]interface{}{"expected": "x"}},
	}
	result, err := engine.Run(context.Background(), RunRequest{
		Name: "exact-match", DatasetID: "ds", AdapterName: "stub", ScorerNames: []string{"exact"}, Dataset: dataset,
	})

	require.NoError(t, err)
	require.Len(t, result.Scores, 1)
	assert.Equal(t, "exact", result.Scores[0].Name)
	assert.Equal(t, 1.0, result.Scores[0].Value)
	assert.Equal(t, "t1", result.Scores[0].Metadata["dataset_item_id"])
}

func TestEngine_AdapterFailureIsolatesItem(t *testing.T) {
	adapter := &stubAdapter{failItem: "t1"}
	scorer := &exactScorer{}
	engine := newTestEngine(t, adapter, scorer, nil)

	dataset := []evaldomain.DatasetItem{
		{ID: "t1", Input: map[string]interface{}{"prompt": "p"}, Expected: map[string]interface{}{"expected": "x"}},
		{ID: "t2", Input: map[string]interface{}{"prompt": "p"}, Expected: map[string]interface{}{"expected": "x"}},
	}
	result, err := engine.Run(context.Background(), RunRequest{
		Name: "partial-fail", DatasetID: "ds", AdapterName: "stub", ScorerNames: []string{"exact"}, Dataset: dataset,
	})

	require.NoError(t, err, "a per-item adapter failure must never abort the run")

	var t1Scores, t2Scores []evaldomain.Score
	for _, s := range result.Scores {
		switch s.ItemID {
		case "t1":
			t1Scores = append(t1Scores, s)
		case "t2":
			t2Scores = append(t2Scores, s)
		}
	}

	require.Len(t, t1Scores, 1)
	assert.Equal(t, evaldomain.GenerationErrorScore, t1Scores[0].Name)
	assert.Equal(t, 0.0, t1Scores[0].Value)

	require.Len(t, t2Scores, 1)
	assert.Equal(t, "exact", t2Scores[0].Name)
	assert.Equal(t, 1.0, t2Scores[0].Value)
}

func TestEngine_OfflineScoringSkipsAdapter(t *testing.T) {
	adapter := &stubAdapter{}
	scorer := &exactScorer{}
	engine := newTestEngine(t, adapter, scorer, nil)

	dataset := []evaldomain.DatasetItem{
		{ID: "t1", Expected: map[string]interface{}{"expected": "x"}, Output: map[string]interface{}{"output": "x"}},
	}
	_, err := engine.Run(context.Background(), RunRequest{
		Name: "offline", DatasetID: "ds", AdapterName: "stub", ScorerNames: []string{"exact"}, Dataset: dataset,
	})

	require.NoError(t, err)
	assert.Equal(t, 0, adapter.calls, "engine must not invoke the adapter when Output is pre-populated")
}

// enrichedStubAdapter tags its response as an enriched envelope and
// implements EnrichedAdapter, so tests can exercise the engine's
// WithEnrichedOutputWrapper hook without importing internal/scorers (which
// would create an import cycle from inside this package's own tests).
type enrichedStubAdapter struct{}

func (enrichedStubAdapter) Name() string { return "enriched-stub" }

func (enrichedStubAdapter) Enriched() bool { return true }

func (enrichedStubAdapter) Invoke(ctx context.Context, item evaldomain.DatasetItem) (map[string]interface{}, error) {
	return map[string]interface{}{"output": "x", "enriched": true}, nil
}

// taggingScorer records whether the response it received carried the
// "enriched" key, so tests can tell the wrapper ran.
type taggingScorer struct{ sawEnriched *bool }

func (taggingScorer) Name() string { return "tagging" }

func (s taggingScorer) Score(ctx context.Context, item evaldomain.DatasetItem, response map[string]interface{}) ([]evaldomain.Score, error) {
	_, *s.sawEnriched = response["enriched"]
	return []evaldomain.Score{{Name: "tagging", Value: 1, Passed: true}}, nil
}

// wrappingScorer strips the "enriched" key before delegating, standing in
// for internal/scorers.EnrichedOutputScorer's unwrap behavior.
type wrappingScorer struct{ inner Scorer }

func (w wrappingScorer) Name() string { return w.inner.Name() }

func (w wrappingScorer) Score(ctx context.Context, item evaldomain.DatasetItem, response map[string]interface{}) ([]evaldomain.Score, error) {
	stripped := map[string]interface{}{"output": response["output"]}
	return w.inner.Score(ctx, item, stripped)
}

func TestEngine_EnrichedAdapterAppliesWrapper(t *testing.T) {
	adapter := enrichedStubAdapter{}
	var sawEnriched bool
	scorer := taggingScorer{sawEnriched: &sawEnriched}

	registries := NewRegistries()
	registries.Adapters.Register(adapter.Name(), adapter)
	registries.Scorers.Register(scorer.Name(), scorer)
	engine := NewEngine(registries, testLogger(), EngineConfig{ConcurrencyLimit: 1}).
		WithEnrichedOutputWrapper(func(s Scorer) Scorer { return wrappingScorer{inner: s} })

	dataset := []evaldomain.DatasetItem{{ID: "t1"}}
	_, err := engine.Run(context.Background(), RunRequest{
		Name: "enriched", DatasetID: "ds", AdapterName: "enriched-stub", ScorerNames: []string{"tagging"}, Dataset: dataset,
	})

	require.NoError(t, err)
	assert.False(t, sawEnriched, "enriched-output wrapper must strip the envelope before the wrapped scorer runs")
}

func TestEngine_NonEnrichedAdapterSkipsWrapper(t *testing.T) {
	adapter := &stubAdapter{}
	scorer := taggingScorer{sawEnriched: new(bool)}
	wrapCalls := 0

	registries := NewRegistries()
	registries.Adapters.Register(adapter.Name(), adapter)
	registries.Scorers.Register(scorer.Name(), scorer)
	engine := NewEngine(registries, testLogger(), EngineConfig{ConcurrencyLimit: 1}).
		WithEnrichedOutputWrapper(func(s Scorer) Scorer {
			wrapCalls++
			return wrappingScorer{inner: s}
		})

	dataset := []evaldomain.DatasetItem{{ID: "t1"}}
	_, err := engine.Run(context.Background(), RunRequest{
		Name: "plain", DatasetID: "ds", AdapterName: "stub", ScorerNames: []string{"tagging"}, Dataset: dataset,
	})

	require.NoError(t, err)
	assert.Zero(t, wrapCalls, "a non-enriched adapter must never have its scorers wrapped")
}

func TestEngine_UnknownAdapterFailsRun(t *testing.T) {
	adapter := &stubAdapter{}
	scorer := &exactScorer{}
	engine := newTestEngine(t, adapter, scorer, nil)

	_, err := engine.Run(context.Background(), RunRequest{
		Name: "bad-adapter", DatasetID: "ds", AdapterName: "does-not-exist", ScorerNames: []string{"exact"},
	})
	require.Error(t, err)
}
