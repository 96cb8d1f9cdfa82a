package eval

import (
	"testing"

	"github.com/stretchr/testify/assert"

	evaldomain "evalforge/internal/core/domain/eval"
)

func TestComparisonEngine_RegressionDetection(t *testing.T) {
	baseline := &evaldomain.EvalResult{
		RunID:  "run-a",
		Scores: []evaldomain.Score{{ItemID: "t1", Name: "acc", Value: 0.90}},
	}
	candidate := &evaldomain.EvalResult{
		RunID:  "run-b",
		Scores: []evaldomain.Score{{ItemID: "t1", Name: "acc", Value: 0.80}},
	}

	engine := NewComparisonEngine(0.01)
	comparison := engine.Compare(baseline, candidate, 0.01)

	assert.Len(t, comparison.Regressed(), 1)
	assert.Empty(t, comparison.Improved())
	assert.InDelta(t, -0.10, comparison.Deltas[0].Delta, 1e-9)
	assert.Equal(t, Regressed, comparison.Deltas[0].Classification)
}

func TestComparisonEngine_Symmetry(t *testing.T) {
	a := &evaldomain.EvalResult{RunID: "a", Scores: []evaldomain.Score{
		{ItemID: "t1", Name: "acc", Value: 0.9},
		{ItemID: "t2", Name: "acc", Value: 0.5},
	}}
	b := &evaldomain.EvalResult{RunID: "b", Scores: []evaldomain.Score{
		{ItemID: "t1", Name: "acc", Value: 0.7},
		{ItemID: "t2", Name: "acc", Value: 0.6},
	}}

	engine := NewComparisonEngine(0.01)
	ab := engine.Compare(a, b, 0.01)
	ba := engine.Compare(b, a, 0.01)

	assert.ElementsMatch(t, deltasForItems(ab.Regressed()), deltasForItems(ba.Improved()))
	assert.ElementsMatch(t, deltasForItems(ab.Improved()), deltasForItems(ba.Regressed()))
}

func deltasForItems(deltas []ScoreDelta) []string {
	out := make([]string, len(deltas))
	for i, d := range deltas {
		out[i] = d.ItemID + "/" + d.ScoreName
	}
	return out
}

func TestGateDecision_GroupsByScoreName(t *testing.T) {
	comparison := &Comparison{
		Deltas: []ScoreDelta{
			{ItemID: "t1", ScoreName: "acc", Classification: Regressed},
			{ItemID: "t2", ScoreName: "acc", Classification: Regressed},
			{ItemID: "t1", ScoreName: "latency", Classification: Regressed},
		},
	}

	passAtTwo, failingAtTwo := GateDecision(comparison, 2)
	assert.False(t, passAtTwo)
	assert.Equal(t, []string{"acc"}, failingAtTwo)

	passAtThree, failingAtThree := GateDecision(comparison, 3)
	assert.True(t, passAtThree)
	assert.Empty(t, failingAtThree)
}
