package eval

import (
	"math"
	"sort"

	evaldomain "evalforge/internal/core/domain/eval"
)

// Classification is the outcome of comparing one (item, score name) pair
// across a baseline and a candidate run.
type Classification string

const (
	Improved  Classification = "improved"
	Regressed Classification = "regressed"
	Unchanged Classification = "unchanged"
)

// ScoreDelta is one (item_id, score_name) comparison between two runs.
type ScoreDelta struct {
	ItemID         string         `json:"item_id"`
	ScoreName      string         `json:"score_name"`
	BaselineValue  float64        `json:"baseline_value"`
	CandidateValue float64        `json:"candidate_value"`
	Delta          float64        `json:"delta"`
	Classification Classification `json:"classification"`
}

// Comparison is the aggregate result of comparing two EvalResults: the
// per-(item,score) change records plus the two per-score-name aggregated
// value maps spec §4.8 calls for (populated for every score present in
// either run, including ones with no counterpart to compare against).
type Comparison struct {
	BaselineRunID   string              `json:"baseline_run_id"`
	CandidateRunID  string              `json:"candidate_run_id"`
	Threshold       float64             `json:"threshold"`
	Deltas          []ScoreDelta        `json:"deltas"`
	BaselineValues  map[string][]float64 `json:"baseline_values"`
	CandidateValues map[string][]float64 `json:"candidate_values"`
}

func (c *Comparison) Improved() []ScoreDelta  { return c.filter(Improved) }
func (c *Comparison) Regressed() []ScoreDelta { return c.filter(Regressed) }
func (c *Comparison) Unchanged() []ScoreDelta { return c.filter(Unchanged) }

func (c *Comparison) filter(class Classification) []ScoreDelta {
	var out []ScoreDelta
	for _, d := range c.Deltas {
		if d.Classification == class {
			out = append(out, d)
		}
	}
	return out
}

type scoreKey struct {
	itemID string
	name   string
}

// ComparisonEngine groups scores by (item_id, score_name) across two
// EvalResults and classifies each pair's delta against a significance
// threshold (default 0.01, see EngineConfig.ComparisonThreshold).
type ComparisonEngine struct {
	DefaultThreshold float64
}

func NewComparisonEngine(defaultThreshold float64) *ComparisonEngine {
	if defaultThreshold == 0 {
		defaultThreshold = 0.01
	}
	return &ComparisonEngine{DefaultThreshold: defaultThreshold}
}

// Compare pairs up scores present in both baseline and candidate by
// (item_id, score_name) and classifies each pair. A pair present in only
// one result is skipped: there is nothing to compare it against.
func (c *ComparisonEngine) Compare(baseline, candidate *evaldomain.EvalResult, threshold float64) *Comparison {
	if threshold == 0 {
		threshold = c.DefaultThreshold
	}

	baselineByKey := make(map[scoreKey]evaldomain.Score, len(baseline.Scores))
	for _, s := range baseline.Scores {
		baselineByKey[scoreKey{s.ItemID, s.Name}] = s
	}

	comp := &Comparison{
		BaselineRunID:   baseline.RunID,
		CandidateRunID:  candidate.RunID,
		Threshold:       threshold,
		BaselineValues:  make(map[string][]float64),
		CandidateValues: make(map[string][]float64),
	}

	for _, bs := range baseline.Scores {
		comp.BaselineValues[bs.Name] = append(comp.BaselineValues[bs.Name], bs.Value)
	}
	for _, cs := range candidate.Scores {
		comp.CandidateValues[cs.Name] = append(comp.CandidateValues[cs.Name], cs.Value)

		bs, ok := baselineByKey[scoreKey{cs.ItemID, cs.Name}]
		if !ok {
			continue
		}
		delta := cs.Value - bs.Value
		comp.Deltas = append(comp.Deltas, ScoreDelta{
			ItemID:         cs.ItemID,
			ScoreName:      cs.Name,
			BaselineValue:  bs.Value,
			CandidateValue: cs.Value,
			Delta:          delta,
			Classification: classify(delta, threshold),
		})
	}

	return comp
}

func classify(delta, threshold float64) Classification {
	switch {
	case math.Abs(delta) < threshold:
		return Unchanged
	case delta > 0:
		return Improved
	default:
		return Regressed
	}
}

// RegressionCountsByScoreName groups the comparison's regressed deltas by
// score name, counting how many dataset items regressed on each score.
func (c *Comparison) RegressionCountsByScoreName() map[string]int {
	counts := make(map[string]int)
	for _, d := range c.Regressed() {
		counts[d.ScoreName]++
	}
	return counts
}

// GateDecision implements the CI deployment-gate signal (§4.8): the set
// of score names whose regression count meets minRegressions (default
// 1). Grounded on the Python original's ci_utils gate helper, which
// blocks a deployment once a score has regressed across enough items.
// A non-empty returned slice means the gate should block; the slice is
// sorted for deterministic output.
func GateDecision(comparison *Comparison, minRegressions int) (pass bool, failing []string) {
	if minRegressions < 1 {
		minRegressions = 1
	}
	counts := comparison.RegressionCountsByScoreName()
	for name, n := range counts {
		if n >= minRegressions {
			failing = append(failing, name)
		}
	}
	sort.Strings(failing)
	return len(failing) == 0, failing
}
