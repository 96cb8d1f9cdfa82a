package guardrail

import (
	"fmt"

	guardraildomain "evalforge/internal/core/domain/guardrail"
)

// Engine evaluates policies against text, enforcing §4.9's ordered
// rule evaluation with block short-circuit.
type Engine struct {
	registry *Registry
	factory  *ScorerFactory
}

func NewEngine(registry *Registry, factory *ScorerFactory) *Engine {
	return &Engine{registry: registry, factory: factory}
}

// EvaluateRequest selects which rules to run. PolicyName is required:
// an empty or unregistered name makes Evaluate return an error. RuleIDs,
// when non-empty, restricts evaluation to those rules of that policy.
// Rules cannot be selected without a policy, and no request evaluates
// every registered policy at once.
type EvaluateRequest struct {
	PolicyName string
	RuleIDs    []string
	Text       string
}

// Evaluate runs the selected rules in declaration order (O4), scoring
// Text against each rule's resolved scorer, and returns the aggregate
// result per §4.9 step 4. A block-action violation short-circuits:
// rules after it are not evaluated and contribute no outcome.
func (e *Engine) Evaluate(req EvaluateRequest) (guardraildomain.PolicyResult, error) {
	policy, err := e.registry.Get(req.PolicyName)
	if err != nil {
		return guardraildomain.PolicyResult{}, err
	}

	rules := selectRules(policy.Rules, req.RuleIDs)

	result := guardraildomain.PolicyResult{PolicyName: policy.Name}
	for _, rule := range rules {
		if !rule.IsEnabled() {
			continue
		}

		outcome := e.evaluateRule(rule, req.Text)
		result.Outcomes = append(result.Outcomes, outcome)

		if outcome.Fired && rule.EffectiveAction() == guardraildomain.ActionBlock {
			result.Blocked = true
			triggered := outcome
			result.TriggeredRule = &triggered
			break
		}
	}

	return result, nil
}

// selectRules filters to the given ids, preserving policy declaration
// order; an empty ids list selects every rule in the policy.
func selectRules(rules []guardraildomain.RuleConfig, ids []string) []guardraildomain.RuleConfig {
	if len(ids) == 0 {
		return rules
	}
	allow := make(map[string]bool, len(ids))
	for _, id := range ids {
		allow[id] = true
	}
	selected := make([]guardraildomain.RuleConfig, 0, len(rules))
	for _, rule := range rules {
		if allow[rule.Name] {
			selected = append(selected, rule)
		}
	}
	return selected
}

// evaluateRule scores text against rule's resolved scorer and applies
// its threshold (§4.9 step 3). A scorer construction/panic failure is
// treated as a safe-default maximal-violation score, so a broken rule
// fails closed rather than silently passing (§4.9 "Failure semantics").
func (e *Engine) evaluateRule(rule guardraildomain.RuleConfig, text string) (outcome guardraildomain.RuleOutcome) {
	defer func() {
		if r := recover(); r != nil {
			outcome = guardraildomain.RuleOutcome{
				RuleName: rule.Name,
				Type:     rule.Type,
				Action:   rule.EffectiveAction(),
				Fired:    true,
				Score:    1.0,
				Reason:   fmt.Sprintf("scorer panic, safe-defaulted: %v", r),
			}
		}
	}()

	threshold := rule.EffectiveThreshold()
	action := rule.EffectiveAction()

	scorer, err := e.factory.Resolve(rule)
	if err != nil {
		return guardraildomain.RuleOutcome{
			RuleName: rule.Name,
			Type:     rule.Type,
			Action:   action,
			Fired:    true,
			Score:    1.0,
			Reason:   fmt.Sprintf("scorer error, safe-defaulted: %v", err),
		}
	}

	score := scorer.ScoreText(text)
	violated := score.Value >= threshold

	return guardraildomain.RuleOutcome{
		RuleName: rule.Name,
		Type:     rule.Type,
		Action:   action,
		Fired:    violated,
		Score:    score.Value,
		Reason:   score.Reason,
	}
}

// Passed reports whether no rule with action block or warn was violated
// (§4.9 step 4).
func Passed(result guardraildomain.PolicyResult) bool {
	for _, outcome := range result.Outcomes {
		if !outcome.Fired {
			continue
		}
		if outcome.Action == guardraildomain.ActionBlock || outcome.Action == guardraildomain.ActionWarn {
			return false
		}
	}
	return true
}

// Violations returns every fired outcome, in evaluation order (§4.9
// step 3: block and warn outcomes append to violations; log outcomes
// append as informational — both are "fired" and returned here).
func Violations(result guardraildomain.PolicyResult) []guardraildomain.RuleOutcome {
	var violations []guardraildomain.RuleOutcome
	for _, outcome := range result.Outcomes {
		if outcome.Fired {
			violations = append(violations, outcome)
		}
	}
	return violations
}

// ScoreSummary collapses outcomes into a name->value map (§4.9 step 4).
func ScoreSummary(result guardraildomain.PolicyResult) map[string]float64 {
	summary := make(map[string]float64, len(result.Outcomes))
	for _, outcome := range result.Outcomes {
		summary[outcome.RuleName] = outcome.Score
	}
	return summary
}
