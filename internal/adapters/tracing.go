package adapters

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	evaldomain "evalforge/internal/core/domain/eval"
	evalsvc "evalforge/internal/core/services/eval"
)

// TraceStore is the read-only backing store a tracing adapter reads
// from: one recorded span per trace, keyed by id. A real deployment
// backs this with an observability platform's query API; tests and the
// trace-to-dataset converter (§9 supplement 5) can use the in-memory
// MemoryTraceStore below.
type TraceStore interface {
	GetTrace(ctx context.Context, traceID string) (TraceData, error)
	ListTraces(ctx context.Context, filters map[string]string, limit int) ([]TraceData, error)
}

// TraceData is the recorded shape of one completed generation: its
// input/output plus attributes in either semantic-convention form
// (llm.token_count.input|output, llm.cost, llm.provider, llm.model) or
// shorthand (input_tokens, output_tokens, total_cost) — §6 "Tracing
// adapter" requires recognizing both.
type TraceData struct {
	TraceID    string
	Input      map[string]interface{}
	Output     map[string]interface{}
	Attributes map[string]interface{}
}

// MemoryTraceStore is an in-memory TraceStore, suitable for tests and for
// small deployments that ingest traces directly rather than querying an
// external backend.
type MemoryTraceStore struct {
	mu     sync.RWMutex
	traces map[string]TraceData
	scores map[string][]evaldomain.Score
}

func NewMemoryTraceStore() *MemoryTraceStore {
	return &MemoryTraceStore{
		traces: make(map[string]TraceData),
		scores: make(map[string][]evaldomain.Score),
	}
}

// RecordScore implements sinks.ObservabilityBackend, attaching score to
// the trace it was computed against the way the teacher's ClickHouse-backed
// ScoreRepository links a score row to its owning span (§4.4).
func (s *MemoryTraceStore) RecordScore(ctx context.Context, score evaldomain.Score) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scores[score.TraceID] = append(s.scores[score.TraceID], score)
	return nil
}

// ScoresForTrace returns the scores recorded against traceID, for tests
// and local inspection.
func (s *MemoryTraceStore) ScoresForTrace(traceID string) []evaldomain.Score {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]evaldomain.Score(nil), s.scores[traceID]...)
}

func (s *MemoryTraceStore) Put(t TraceData) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.traces[t.TraceID] = t
}

func (s *MemoryTraceStore) GetTrace(ctx context.Context, traceID string) (TraceData, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.traces[traceID]
	if !ok {
		return TraceData{}, fmt.Errorf("trace %q not found", traceID)
	}
	return t, nil
}

func (s *MemoryTraceStore) ListTraces(ctx context.Context, filters map[string]string, limit int) ([]TraceData, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []TraceData
	for _, t := range s.traces {
		if matchesFilters(t, filters) {
			out = append(out, t)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func matchesFilters(t TraceData, filters map[string]string) bool {
	for k, v := range filters {
		if av, ok := t.Attributes[k]; !ok || fmt.Sprint(av) != v {
			return false
		}
	}
	return true
}

// TracingAdapter implements the read-only §6 contract (get_trace,
// get_cost_data, list_traces) over a TraceStore, extracting cost/token
// attributes under either the OpenTelemetry semantic-convention keys or
// their shorthand aliases.
type TracingAdapter struct {
	store TraceStore
}

func NewTracingAdapter(store TraceStore) *TracingAdapter {
	return &TracingAdapter{store: store}
}

func (t *TracingAdapter) GetTrace(ctx context.Context, traceID string) (TraceData, error) {
	return t.store.GetTrace(ctx, traceID)
}

func (t *TracingAdapter) ListTraces(ctx context.Context, filters map[string]string, limit int) ([]TraceData, error) {
	return t.store.ListTraces(ctx, filters, limit)
}

// GetCostData implements evalsvc.TracingAdapter, satisfying the engine's
// aggregate_metrics computation (§4.5 step 5).
func (t *TracingAdapter) GetCostData(ctx context.Context, traceID string) (evalsvc.CostData, error) {
	trace, err := t.store.GetTrace(ctx, traceID)
	if err != nil {
		return evalsvc.CostData{}, err
	}
	attrs := trace.Attributes

	return evalsvc.CostData{
		InputTokens:  attrInt64(attrs, "llm.token_count.input", "input_tokens"),
		OutputTokens: attrInt64(attrs, "llm.token_count.output", "output_tokens"),
		TotalTokens:  attrInt64(attrs, "llm.token_count.total", "total_tokens"),
		Cost:         attrFloat64(attrs, "llm.cost", "total_cost"),
		Provider:     attrString(attrs, "llm.provider", "provider"),
		Model:        attrString(attrs, "llm.model", "model"),
	}, nil
}

func attrInt64(attrs map[string]interface{}, keys ...string) int64 {
	for _, k := range keys {
		switch v := attrs[k].(type) {
		case int64:
			return v
		case int:
			return int64(v)
		case float64:
			return int64(v)
		}
	}
	return 0
}

func attrFloat64(attrs map[string]interface{}, keys ...string) float64 {
	for _, k := range keys {
		switch v := attrs[k].(type) {
		case float64:
			return v
		case int:
			return float64(v)
		case int64:
			return float64(v)
		}
	}
	return 0
}

func attrString(attrs map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if v, ok := attrs[k].(string); ok {
			return v
		}
	}
	return ""
}

// IngestSpans records OpenTelemetry spans captured by the SDK's own span
// processor (e.g. an in-process sdktrace.TracerProvider wired with a
// processor that hands finished spans here) into store, extracting each
// span's attribute.KeyValue set into the generic Attributes map
// GetCostData reads semantic-convention keys from. This is how a
// deployment that instruments its adapter calls with OTel spans directly
// (rather than querying an external backend) feeds the tracing adapter.
func IngestSpans(store *MemoryTraceStore, spans []sdktrace.ReadOnlySpan) {
	for _, span := range spans {
		traceID := span.SpanContext().TraceID()
		if !traceIDValid(traceID) {
			continue
		}
		attrs := make(map[string]interface{}, len(span.Attributes()))
		for _, kv := range span.Attributes() {
			attrs[string(kv.Key)] = attributeValue(kv)
		}
		store.Put(TraceData{
			TraceID:    traceID.String(),
			Attributes: attrs,
		})
	}
}

// traceIDValid rejects the zero trace ID a span emits when it was
// recorded without an active trace context (e.g. sampled out), so
// IngestSpans never overwrites a real trace's entry with a garbage key.
func traceIDValid(id trace.TraceID) bool {
	return id.IsValid()
}

func attributeValue(kv attribute.KeyValue) interface{} {
	switch kv.Value.Type() {
	case attribute.INT64:
		return kv.Value.AsInt64()
	case attribute.FLOAT64:
		return kv.Value.AsFloat64()
	case attribute.STRING:
		return kv.Value.AsString()
	case attribute.BOOL:
		return kv.Value.AsBool()
	default:
		return kv.Value.AsInterface()
	}
}

// ListSpans adapts TracingAdapter to evalsvc.TraceSource, letting the
// trace-to-dataset loader (§9 supplement 5) harvest a regression dataset
// directly from the same tracing backend used for cost aggregation.
func (t *TracingAdapter) ListSpans(ctx context.Context, filters map[string]string) ([]evalsvc.TraceRecord, error) {
	traces, err := t.ListTraces(ctx, filters, 0)
	if err != nil {
		return nil, err
	}
	records := make([]evalsvc.TraceRecord, 0, len(traces))
	for _, tr := range traces {
		records = append(records, evalsvc.TraceRecord{
			SpanID:     tr.TraceID,
			Input:      tr.Input,
			Output:     tr.Output,
			Attributes: tr.Attributes,
		})
	}
	return records, nil
}
