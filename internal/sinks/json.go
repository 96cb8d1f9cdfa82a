package sinks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	evaldomain "evalforge/internal/core/domain/eval"
)

// JSONSink accumulates every emitted EvalResult and writes them as a
// single JSON array on Flush (§4.4).
type JSONSink struct {
	w io.Writer

	mu   sync.Mutex
	runs []*evaldomain.EvalResult
}

func NewJSONSink(w io.Writer) *JSONSink {
	return &JSONSink{w: w}
}

func (s *JSONSink) Name() string { return "json" }

func (s *JSONSink) EmitScore(ctx context.Context, score evaldomain.Score) error {
	return nil
}

func (s *JSONSink) EmitRun(ctx context.Context, result *evaldomain.EvalResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, result)
	return nil
}

func (s *JSONSink) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	enc := json.NewEncoder(s.w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s.runs); err != nil {
		return fmt.Errorf("json sink: %w", err)
	}
	s.runs = nil
	return nil
}
