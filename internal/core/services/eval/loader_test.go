package eval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	evaldomain "evalforge/internal/core/domain/eval"
)

// namedLoader returns a fixed set of items and records the datasetID it
// was called with, standing in for a real DatasetLoader in scheme-dispatch
// tests.
type namedLoader struct {
	items []evaldomain.DatasetItem
	gotID string
}

func (l *namedLoader) Load(ctx context.Context, datasetID string) ([]evaldomain.DatasetItem, error) {
	l.gotID = datasetID
	return l.items, nil
}

func validItems() []evaldomain.DatasetItem {
	return []evaldomain.DatasetItem{{ID: "t1", Input: map[string]interface{}{"prompt": "p"}}}
}

func TestSourceLoader_DispatchesByScheme(t *testing.T) {
	def := &namedLoader{items: validItems()}
	csv := &namedLoader{items: validItems()}
	loader := NewSourceLoader(def).WithScheme("csv", csv)

	items, err := loader.Load(context.Background(), "csv:fixtures/data.csv")
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, "fixtures/data.csv", csv.gotID, "the scheme prefix must be stripped before delegating")
	assert.Empty(t, def.gotID, "the default loader must not run when a scheme matches")
}

func TestSourceLoader_FallsBackToDefaultForUnknownScheme(t *testing.T) {
	def := &namedLoader{items: validItems()}
	loader := NewSourceLoader(def).WithScheme("csv", &namedLoader{items: validItems()})

	items, err := loader.Load(context.Background(), "plain-dataset-id")
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, "plain-dataset-id", def.gotID)
}

func TestSourceLoader_RejectsInvalidDataset(t *testing.T) {
	def := &namedLoader{items: []evaldomain.DatasetItem{{ID: "", Input: nil}}}
	loader := NewSourceLoader(def)

	_, err := loader.Load(context.Background(), "bad-dataset")
	assert.Error(t, err, "ValidateDataset's error-level findings must surface as a load failure")
}

func TestSourceLoader_NoLoaderConfiguredErrors(t *testing.T) {
	loader := NewSourceLoader(nil)

	_, err := loader.Load(context.Background(), "anything")
	assert.Error(t, err)
}

func TestSourceLoader_TraceSchemeUsesTraceLoader(t *testing.T) {
	source := &fakeTraceSource{records: []TraceRecord{
		{SpanID: "trace-1", Input: map[string]interface{}{"prompt": "p"}, Output: map[string]interface{}{"output": "o"}},
	}}
	traceLoader := NewTraceLoader(source, nil)
	loader := NewSourceLoader(nil).WithScheme("trace", traceLoader)

	items, err := loader.Load(context.Background(), "trace:anything")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "trace-1", items[0].ID)
}

type fakeTraceSource struct{ records []TraceRecord }

func (f *fakeTraceSource) ListSpans(ctx context.Context, filters map[string]string) ([]TraceRecord, error) {
	return f.records, nil
}
