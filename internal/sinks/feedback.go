package sinks

import (
	"context"
	"sync"

	evaldomain "evalforge/internal/core/domain/eval"
)

// FeedbackKey identifies one human-in-the-loop correction slot.
type FeedbackKey struct {
	RunID         string
	DatasetItemID string
}

// Feedback is a recorded human correction for a scored item, keyed for
// later re-scoring (§9 supplement 7, grounded on the Python original's
// feedback/collector.py).
type Feedback struct {
	Key       FeedbackKey
	Score     evaldomain.Score
	Corrected map[string]interface{}
	Comment   string
}

// FeedbackSink is an optional sink that records every score emitted by a
// run, keyed by (run_id, dataset_item_id), so a reviewer can later
// attach a correction for re-scoring. It does not itself implement
// correction; it is the collection point the original's feedback loop
// reads from.
type FeedbackSink struct {
	mu      sync.Mutex
	records map[FeedbackKey][]Feedback
}

func NewFeedbackSink() *FeedbackSink {
	return &FeedbackSink{records: make(map[FeedbackKey][]Feedback)}
}

func (s *FeedbackSink) Name() string { return "feedback" }

func (s *FeedbackSink) EmitScore(ctx context.Context, score evaldomain.Score) error {
	return nil
}

func (s *FeedbackSink) EmitRun(ctx context.Context, result *evaldomain.EvalResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sc := range result.Scores {
		key := FeedbackKey{RunID: result.RunID, DatasetItemID: sc.ItemID}
		s.records[key] = append(s.records[key], Feedback{Key: key, Score: sc})
	}
	return nil
}

func (s *FeedbackSink) Flush(ctx context.Context) error { return nil }

// Correct attaches a human correction to a previously recorded score,
// for later re-scoring. Returns false if the key is unknown.
func (s *FeedbackSink) Correct(key FeedbackKey, corrected map[string]interface{}, comment string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	records, ok := s.records[key]
	if !ok || len(records) == 0 {
		return false
	}
	last := len(records) - 1
	records[last].Corrected = corrected
	records[last].Comment = comment
	s.records[key] = records
	return true
}

// Get returns the recorded feedback entries for a key.
func (s *FeedbackSink) Get(key FeedbackKey) []Feedback {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Feedback(nil), s.records[key]...)
}
