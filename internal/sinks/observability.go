package sinks

import (
	"context"
	"fmt"
	"sync"

	evaldomain "evalforge/internal/core/domain/eval"
)

// ObservabilityBackend is the write surface an observability-backend
// forwarder sends scores to, linked by trace_id/observation_id so the
// backend can attach a score to the span that produced it. Grounded on
// the teacher's internal/infrastructure/repository/observability
// ScoreRepository, kept as a narrow interface here (rather than
// importing the teacher's ClickHouse driver directly) so any backend —
// ClickHouse, Postgres, a SaaS tracing API — can satisfy it.
type ObservabilityBackend interface {
	RecordScore(ctx context.Context, score evaldomain.Score) error
}

// ObservabilitySink forwards every score in an emitted run to a
// configured ObservabilityBackend, skipping scores that carry no
// trace_id (there is nothing to link them to) (§4.4).
type ObservabilitySink struct {
	backend ObservabilityBackend

	mu      sync.Mutex
	pending []evaldomain.Score
}

func NewObservabilitySink(backend ObservabilityBackend) *ObservabilitySink {
	return &ObservabilitySink{backend: backend}
}

func (s *ObservabilitySink) Name() string { return "observability" }

func (s *ObservabilitySink) EmitScore(ctx context.Context, score evaldomain.Score) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if score.TraceID == "" {
		return nil
	}
	s.pending = append(s.pending, score)
	return nil
}

func (s *ObservabilitySink) EmitRun(ctx context.Context, result *evaldomain.EvalResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sc := range result.Scores {
		if sc.TraceID != "" {
			s.pending = append(s.pending, sc)
		}
	}
	return nil
}

func (s *ObservabilitySink) Flush(ctx context.Context) error {
	s.mu.Lock()
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()

	var firstErr error
	for _, sc := range pending {
		if err := s.backend.RecordScore(ctx, sc); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("observability sink: record score %s/%s: %w", sc.ItemID, sc.Name, err)
		}
	}
	return firstErr
}
