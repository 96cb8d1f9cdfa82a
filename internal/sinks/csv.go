package sinks

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"sync"

	evaldomain "evalforge/internal/core/domain/eval"
	"evalforge/pkg/utils"
)

// CSVSink flattens every Score across every emitted run into rows,
// writing them all on Flush. Column order is core fields first, then
// the union of every score's metadata keys in sorted order (§4.4).
type CSVSink struct {
	w io.Writer

	mu     sync.Mutex
	scores []evaldomain.Score
}

func NewCSVSink(w io.Writer) *CSVSink {
	return &CSVSink{w: w}
}

func (s *CSVSink) Name() string { return "csv" }

func (s *CSVSink) EmitScore(ctx context.Context, score evaldomain.Score) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scores = append(s.scores, score)
	return nil
}

func (s *CSVSink) EmitRun(ctx context.Context, result *evaldomain.EvalResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scores = append(s.scores, result.Scores...)
	return nil
}

func (s *CSVSink) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	flattened := make([]map[string]interface{}, len(s.scores))
	for i, sc := range s.scores {
		flattened[i] = utils.JSONFlatten(sc.Metadata)
	}
	metaCols := metadataColumnUnion(flattened)
	w := csv.NewWriter(s.w)

	header := append([]string{"item_id", "name", "value", "passed", "eval_id", "reason", "trace_id", "observation_id"}, metaCols...)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("csv sink: write header: %w", err)
	}

	for i, sc := range s.scores {
		row := []string{
			sc.ItemID,
			sc.Name,
			strconv.FormatFloat(sc.Value, 'f', -1, 64),
			strconv.FormatBool(sc.Passed),
			sc.EvalID,
			sc.Reason,
			sc.TraceID,
			sc.ObservationID,
		}
		for _, col := range metaCols {
			if v, ok := flattened[i][col]; ok {
				row = append(row, fmt.Sprint(v))
			} else {
				row = append(row, "")
			}
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("csv sink: write row: %w", err)
		}
	}

	w.Flush()
	s.scores = nil
	return w.Error()
}

// metadataColumnUnion collects every flattened metadata key across scores
// into a sorted slice, so the CSV gets stable columns regardless of map
// iteration order and nested structure (§4.4 "column order: core fields
// first, then sorted remainder"). Nested metadata (e.g. a tool-call
// record under "tools") is dot-flattened via pkg/utils.JSONFlatten so it
// still lands in flat CSV columns instead of a stringified blob.
func metadataColumnUnion(flattened []map[string]interface{}) []string {
	seen := map[string]bool{}
	for _, m := range flattened {
		for k := range m {
			seen[k] = true
		}
	}
	cols := make([]string, 0, len(seen))
	for k := range seen {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}
