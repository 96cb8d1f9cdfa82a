package sinks

import (
	"context"
	"fmt"
	"html"
	"io"
	"sync"

	evaldomain "evalforge/internal/core/domain/eval"
)

// HTMLSink renders a minimal, dependency-free HTML report: one table
// per run, one row per score (§4.4).
type HTMLSink struct {
	w io.Writer

	mu   sync.Mutex
	runs []*evaldomain.EvalResult
}

func NewHTMLSink(w io.Writer) *HTMLSink {
	return &HTMLSink{w: w}
}

func (s *HTMLSink) Name() string { return "html" }

func (s *HTMLSink) EmitScore(ctx context.Context, score evaldomain.Score) error {
	return nil
}

func (s *HTMLSink) EmitRun(ctx context.Context, result *evaldomain.EvalResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, result)
	return nil
}

func (s *HTMLSink) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fmt.Fprintln(s.w, "<!doctype html><html><head><meta charset=\"utf-8\"><title>evalforge report</title></head><body>")
	for _, run := range s.runs {
		fmt.Fprintf(s.w, "<h2>%s &mdash; run %s</h2>\n", html.EscapeString(run.Name), html.EscapeString(run.RunID))
		fmt.Fprintln(s.w, "<table border=\"1\" cellpadding=\"4\"><tr><th>item</th><th>score</th><th>value</th><th>passed</th><th>reason</th></tr>")
		for _, sc := range run.Scores {
			fmt.Fprintf(s.w, "<tr><td>%s</td><td>%s</td><td>%.4f</td><td>%v</td><td>%s</td></tr>\n",
				html.EscapeString(sc.ItemID), html.EscapeString(sc.Name), sc.Value, sc.Passed, html.EscapeString(sc.Reason))
		}
		fmt.Fprintln(s.w, "</table>")
	}
	fmt.Fprintln(s.w, "</body></html>")

	s.runs = nil
	return nil
}
