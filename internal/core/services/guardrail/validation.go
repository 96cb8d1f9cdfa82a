// Package guardrail implements the policy lifecycle and evaluation
// engine described in spec §4.9: validating a declarative policy
// document, resolving each rule to a concrete guardrail scorer, and
// evaluating rules in declaration order with block/warn/log semantics.
package guardrail

import (
	"fmt"

	guardraildomain "evalforge/internal/core/domain/guardrail"
)

// ValidatePolicy checks a policy document against §4.9's rules and
// returns every diagnostic found; an empty slice means the policy may be
// registered. Registry.Register runs this check itself and stores
// nothing when it returns any diagnostic.
func ValidatePolicy(policy guardraildomain.Policy) []string {
	var diagnostics []string

	if policy.Name == "" {
		diagnostics = append(diagnostics, "policy name must not be empty")
	}
	if len(policy.Rules) == 0 {
		diagnostics = append(diagnostics, "policy must contain at least one rule")
	}

	seen := make(map[string]bool, len(policy.Rules))
	for i, rule := range policy.Rules {
		prefix := fmt.Sprintf("rule[%d]", i)
		if rule.Name != "" {
			prefix = fmt.Sprintf("rule %q", rule.Name)
		}

		if rule.Name == "" {
			diagnostics = append(diagnostics, prefix+": name must not be empty")
		} else if seen[rule.Name] {
			diagnostics = append(diagnostics, prefix+": duplicate rule name")
		}
		seen[rule.Name] = true

		if !guardraildomain.ValidRuleType(rule.Type) {
			diagnostics = append(diagnostics, fmt.Sprintf("%s: invalid rule type %q", prefix, rule.Type))
		}

		action := rule.EffectiveAction()
		if !guardraildomain.ValidRuleAction(action) {
			diagnostics = append(diagnostics, fmt.Sprintf("%s: invalid action %q", prefix, action))
		}

		threshold := rule.EffectiveThreshold()
		if threshold < 0 || threshold > 1 {
			diagnostics = append(diagnostics, fmt.Sprintf("%s: threshold %.3f out of range [0,1]", prefix, threshold))
		}

		switch rule.Type {
		case guardraildomain.RuleRegex:
			if len(rule.Patterns) == 0 {
				diagnostics = append(diagnostics, prefix+": type \"regex\" requires at least one pattern")
			}
		case guardraildomain.RuleKeyword:
			if len(rule.Keywords) == 0 {
				diagnostics = append(diagnostics, prefix+": type \"keyword\" requires at least one keyword")
			}
		}
	}

	return diagnostics
}
