package guardrail

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	guardraildomain "evalforge/internal/core/domain/guardrail"
)

func boolPtr(b bool) *bool { return &b }

func TestEngine_BlockShortCircuits(t *testing.T) {
	registry := NewRegistry()
	factory, err := NewScorerFactory(16)
	require.NoError(t, err)
	engine := NewEngine(registry, factory)

	policy := guardraildomain.Policy{
		Name: "pii-guard",
		Rules: []guardraildomain.RuleConfig{
			{Name: "secret-keyword", Type: guardraildomain.RuleKeyword, Keywords: []string{"secret"}, Threshold: 0.5, Action: guardraildomain.ActionBlock},
			{Name: "toxicity-check", Type: guardraildomain.RuleToxicity, Threshold: 0.7, Action: guardraildomain.ActionWarn},
		},
	}
	diagnostics, err := registry.Register(policy)
	require.NoError(t, err)
	require.Empty(t, diagnostics)

	result, err := engine.Evaluate(EvaluateRequest{PolicyName: "pii-guard", Text: "this is secret"})
	require.NoError(t, err)

	assert.True(t, result.Blocked)
	require.NotNil(t, result.TriggeredRule)
	assert.Equal(t, "secret-keyword", result.TriggeredRule.RuleName)
	require.Len(t, result.Outcomes, 1, "rules after a block must not be evaluated")
	assert.False(t, Passed(result))
}

func TestEngine_WarnContinues(t *testing.T) {
	registry := NewRegistry()
	factory, err := NewScorerFactory(16)
	require.NoError(t, err)
	engine := NewEngine(registry, factory)

	policy := guardraildomain.Policy{
		Name: "warn-only",
		Rules: []guardraildomain.RuleConfig{
			{Name: "keyword-warn", Type: guardraildomain.RuleKeyword, Keywords: []string{"secret"}, Threshold: 0.5, Action: guardraildomain.ActionWarn},
			{Name: "toxicity-check", Type: guardraildomain.RuleToxicity, Threshold: 0.7, Action: guardraildomain.ActionWarn},
		},
	}
	_, err = registry.Register(policy)
	require.NoError(t, err)

	result, err := engine.Evaluate(EvaluateRequest{PolicyName: "warn-only", Text: "this is secret"})
	require.NoError(t, err)

	assert.False(t, result.Blocked)
	assert.Len(t, result.Outcomes, 2, "non-blocking rules never short-circuit evaluation")
	assert.False(t, Passed(result))
	assert.Len(t, Violations(result), 1)
}

func TestValidatePolicy_RequiresRuleTypeConfig(t *testing.T) {
	policy := guardraildomain.Policy{
		Name: "broken",
		Rules: []guardraildomain.RuleConfig{
			{Name: "r1", Type: guardraildomain.RuleRegex},
		},
	}
	diagnostics := ValidatePolicy(policy)
	require.NotEmpty(t, diagnostics)
	assert.Contains(t, diagnostics[0], "requires at least one pattern")
}

func TestValidatePolicy_DuplicateRuleNames(t *testing.T) {
	policy := guardraildomain.Policy{
		Name: "dup",
		Rules: []guardraildomain.RuleConfig{
			{Name: "r1", Type: guardraildomain.RuleToxicity, Enabled: boolPtr(true)},
			{Name: "r1", Type: guardraildomain.RuleToxicity, Enabled: boolPtr(true)},
		},
	}
	diagnostics := ValidatePolicy(policy)
	found := false
	for _, d := range diagnostics {
		if d == `rule "r1": duplicate rule name` {
			found = true
		}
	}
	assert.True(t, found, "expected duplicate rule name diagnostic, got %v", diagnostics)
}

func TestRegistry_RejectsDuplicateRegistration(t *testing.T) {
	registry := NewRegistry()
	policy := guardraildomain.Policy{
		Name:  "once",
		Rules: []guardraildomain.RuleConfig{{Name: "r1", Type: guardraildomain.RuleToxicity}},
	}
	_, err := registry.Register(policy)
	require.NoError(t, err)

	_, err = registry.Register(policy)
	assert.Error(t, err)
}
