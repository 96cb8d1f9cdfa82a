package adapters

import (
	"context"
	"fmt"

	evaldomain "evalforge/internal/core/domain/eval"
)

// TraceReadingAdapter implements the §4.2 "Trace-reading" adapter: it
// performs no new generation, instead returning the output already
// recorded against a trace. DatasetItem.Metadata["trace_id"] selects
// which trace to read.
type TraceReadingAdapter struct {
	tracing *TracingAdapter
}

func NewTraceReadingAdapter(tracing *TracingAdapter) *TraceReadingAdapter {
	return &TraceReadingAdapter{tracing: tracing}
}

func (a *TraceReadingAdapter) Name() string { return "trace_reading" }

func (a *TraceReadingAdapter) Invoke(ctx context.Context, item evaldomain.DatasetItem) (map[string]interface{}, error) {
	traceID, _ := item.Metadata["trace_id"].(string)
	if traceID == "" {
		return nil, fmt.Errorf("trace reading adapter: item %s has no trace_id", item.ID)
	}

	trace, err := a.tracing.GetTrace(ctx, traceID)
	if err != nil {
		return nil, fmt.Errorf("trace reading adapter: %w", err)
	}

	response := make(map[string]interface{}, len(trace.Output)+1)
	for k, v := range trace.Output {
		response[k] = v
	}
	response["trace_id"] = traceID
	return response, nil
}
