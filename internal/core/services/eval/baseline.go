package eval

import (
	"fmt"
	"sync"

	evaldomain "evalforge/internal/core/domain/eval"
)

// BaselineRegistry holds the designated baseline EvalResult per eval_id,
// so later runs of the same evaluation can be compared against a fixed
// reference point instead of only the immediately preceding run.
// Grounded on the Python original's baseline_tools/baseline_comparison_skill,
// which pin a named baseline per evaluation for regression gating.
type BaselineRegistry struct {
	mu        sync.RWMutex
	baselines map[string]*evaldomain.EvalResult
}

func NewBaselineRegistry() *BaselineRegistry {
	return &BaselineRegistry{baselines: make(map[string]*evaldomain.EvalResult)}
}

func (b *BaselineRegistry) SetBaseline(result *evaldomain.EvalResult) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.baselines[result.EvalID] = result
}

func (b *BaselineRegistry) GetBaseline(evalID string) (*evaldomain.EvalResult, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	r, ok := b.baselines[evalID]
	return r, ok
}

// CompareToBaseline compares candidate against the registered baseline
// for its eval_id, erroring if no baseline has been set yet.
func (b *BaselineRegistry) CompareToBaseline(engine *ComparisonEngine, candidate *evaldomain.EvalResult, threshold float64) (*Comparison, error) {
	baseline, ok := b.GetBaseline(candidate.EvalID)
	if !ok {
		return nil, fmt.Errorf("no baseline registered for eval_id %s", candidate.EvalID)
	}
	return engine.Compare(baseline, candidate, threshold), nil
}
