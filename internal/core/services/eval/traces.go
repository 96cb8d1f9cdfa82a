package eval

import (
	"context"
	"strings"

	evaldomain "evalforge/internal/core/domain/eval"
)

// TraceRecord is the minimal shape a tracing backend must expose for
// conversion into a dataset item: one LLM inference span's input,
// output, and gen_ai.* attributes.
type TraceRecord struct {
	SpanID     string
	Input      map[string]interface{}
	Output     map[string]interface{}
	Attributes map[string]interface{}
}

// TraceSource lists spans matching a filter, used to harvest production
// traffic into a regression dataset.
type TraceSource interface {
	ListSpans(ctx context.Context, filters map[string]string) ([]TraceRecord, error)
}

// TraceLoader converts recorded spans into dataset items, so a fixed set
// of production inputs (and, where present, their accepted outputs) can
// be replayed as a regression dataset. Grounded on the Python original's
// datasets/trace_converter.py, which builds evaluation datasets directly
// from captured traces rather than hand-authored fixtures.
type TraceLoader struct {
	Source  TraceSource
	Filters map[string]string
}

func NewTraceLoader(source TraceSource, filters map[string]string) *TraceLoader {
	return &TraceLoader{Source: source, Filters: filters}
}

// Load lists spans matching l.Filters merged with any comma-separated
// "key=value" filters carried in datasetID (parts without "=" are ignored).
func (l *TraceLoader) Load(ctx context.Context, datasetID string) ([]evaldomain.DatasetItem, error) {
	filters := make(map[string]string, len(l.Filters))
	for k, v := range l.Filters {
		filters[k] = v
	}
	for _, part := range strings.Split(datasetID, ",") {
		if k, v, ok := strings.Cut(part, "="); ok && k != "" {
			filters[k] = v
		}
	}
	records, err := l.Source.ListSpans(ctx, filters)
	if err != nil {
		return nil, err
	}

	items := make([]evaldomain.DatasetItem, 0, len(records))
	for _, rec := range records {
		metadata := make(map[string]interface{}, len(rec.Attributes)+1)
		for k, v := range rec.Attributes {
			metadata[k] = v
		}
		metadata["trace_id"] = rec.SpanID

		items = append(items, evaldomain.DatasetItem{
			ID:       rec.SpanID,
			Input:    rec.Input,
			Output:   rec.Output,
			Metadata: metadata,
		})
	}
	return items, nil
}
