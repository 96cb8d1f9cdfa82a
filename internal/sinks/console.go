// Package sinks provides the built-in Sink implementations (§4.4):
// console, CSV, JSON, JUnit XML, HTML report, an observability-backend
// forwarder, and a feedback collector. Every sink buffers until Flush;
// the engine calls EmitRun exactly once per sink followed by Flush
// exactly once (§5), and a failure in one sink never prevents another
// from flushing (P5) because the engine invokes each in isolation.
package sinks

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	evaldomain "evalforge/internal/core/domain/eval"
)

// ConsoleSink writes a short human-readable summary of each run to an
// io.Writer (stdout in production), one line per score plus a pass-rate
// summary on Flush.
type ConsoleSink struct {
	w      io.Writer
	logger *slog.Logger

	mu     sync.Mutex
	runs   []*evaldomain.EvalResult
	scores []evaldomain.Score
}

func NewConsoleSink(w io.Writer, logger *slog.Logger) *ConsoleSink {
	return &ConsoleSink{w: w, logger: logger}
}

func (s *ConsoleSink) Name() string { return "console" }

func (s *ConsoleSink) EmitScore(ctx context.Context, score evaldomain.Score) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scores = append(s.scores, score)
	return nil
}

func (s *ConsoleSink) EmitRun(ctx context.Context, result *evaldomain.EvalResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, result)
	return nil
}

func (s *ConsoleSink) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, run := range s.runs {
		passed, total := 0, len(run.Scores)
		for _, sc := range run.Scores {
			if sc.Passed {
				passed++
			}
		}
		fmt.Fprintf(s.w, "run %s (eval %s): %d/%d scores passed\n", run.RunID, run.EvalID, passed, total)
		for _, sc := range run.Scores {
			fmt.Fprintf(s.w, "  [%s] %s = %.4f (%v)\n", sc.ItemID, sc.Name, sc.Value, sc.Passed)
		}
	}
	s.runs = nil
	s.scores = nil
	return nil
}
