// Package guardrail defines the policy and rule data model enforced by
// the guardrail policy engine before or after an adapter call.
package guardrail

import "time"

// RuleType is the closed set of guardrail rule kinds. Engine and registry
// code switch exhaustively over this set; adding a kind means adding a
// case everywhere, not a string users can smuggle in through config.
type RuleType string

const (
	RuleHallucination  RuleType = "hallucination"
	RulePromptInjection RuleType = "prompt_injection"
	RuleToxicity       RuleType = "toxicity"
	RulePII            RuleType = "pii"
	RuleSensitiveData  RuleType = "sensitive_data"
	RuleRegex          RuleType = "regex"
	RuleKeyword        RuleType = "keyword"
)

// RuleAction is what the engine does when a rule fires.
type RuleAction string

const (
	ActionBlock RuleAction = "block"
	ActionWarn  RuleAction = "warn"
	ActionLog   RuleAction = "log"
)

// RuleConfig is one ordered rule within a Policy. Name is also the rule's
// id: Policy validation requires it be unique within the policy (§4.9).
type RuleConfig struct {
	Name      string                 `json:"name"`
	Type      RuleType               `json:"type"`
	Enabled   *bool                  `json:"enabled,omitempty"`
	Action    RuleAction             `json:"action"`
	Threshold float64                `json:"threshold,omitempty"`
	Patterns  []string               `json:"patterns,omitempty"`
	Keywords  []string               `json:"keywords,omitempty"`
	Field     string                 `json:"field,omitempty"`
	Params    map[string]interface{} `json:"params,omitempty"`
}

// IsEnabled reports the rule's effective enabled state, defaulting to
// true when unset (§6 policy document defaults).
func (r RuleConfig) IsEnabled() bool {
	return r.Enabled == nil || *r.Enabled
}

// EffectiveThreshold returns the rule's threshold, defaulting to 0.5
// when unset (§6).
func (r RuleConfig) EffectiveThreshold() float64 {
	if r.Threshold == 0 {
		return 0.5
	}
	return r.Threshold
}

// EffectiveAction returns the rule's action, defaulting to "warn" when
// unset (§6).
func (r RuleConfig) EffectiveAction() RuleAction {
	if r.Action == "" {
		return ActionWarn
	}
	return r.Action
}

// Policy is an ordered, named set of rules. Rules are evaluated in order;
// the engine short-circuits on the first block-action rule that fires.
type Policy struct {
	Name      string       `json:"name"`
	Version   int          `json:"version"`
	Rules     []RuleConfig `json:"rules"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// RuleOutcome is the result of evaluating a single rule against content.
type RuleOutcome struct {
	RuleName string     `json:"rule_name"`
	Type     RuleType   `json:"type"`
	Action   RuleAction `json:"action"`
	Fired    bool       `json:"fired"`
	Score    float64    `json:"score"`
	Reason   string     `json:"reason,omitempty"`
}

// PolicyResult is the aggregate outcome of evaluating a Policy: every rule
// outcome in order, plus whether evaluation was short-circuited by a
// blocking rule.
type PolicyResult struct {
	PolicyName    string        `json:"policy_name"`
	Blocked       bool          `json:"blocked"`
	TriggeredRule *RuleOutcome  `json:"triggered_rule,omitempty"`
	Outcomes      []RuleOutcome `json:"outcomes"`
}

// ValidRuleType reports whether t is one of the closed set of rule kinds.
func ValidRuleType(t RuleType) bool {
	switch t {
	case RuleHallucination, RulePromptInjection, RuleToxicity, RulePII, RuleSensitiveData, RuleRegex, RuleKeyword:
		return true
	default:
		return false
	}
}

// ValidRuleAction reports whether a is one of the closed set of actions.
func ValidRuleAction(a RuleAction) bool {
	switch a {
	case ActionBlock, ActionWarn, ActionLog:
		return true
	default:
		return false
	}
}
