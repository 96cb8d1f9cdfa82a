package guardrail

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	guardraildomain "evalforge/internal/core/domain/guardrail"
	"evalforge/internal/scorers"
)

// scorerKey identifies a rule's resolved scorer uniquely enough to cache
// it: the rule's type plus whatever configuration it was built from.
// Two rules of the same type and config (e.g. two "pii" rules in
// different policies) share one compiled scorer.
type scorerKey struct {
	ruleType guardraildomain.RuleType
	config   string
}

// ScorerFactory builds and caches the TextScorer a rule resolves to.
// Compiling a regex/keyword scorer is cheap but not free; this mirrors
// the teacher's rule_worker.go/evaluator_worker.go hand-rolled TTL
// caches, generalized to an LRU (§9 DOMAIN STACK).
type ScorerFactory struct {
	cache *lru.Cache[scorerKey, scorers.TextScorer]
}

func NewScorerFactory(cacheSize int) (*ScorerFactory, error) {
	if cacheSize <= 0 {
		cacheSize = 128
	}
	cache, err := lru.New[scorerKey, scorers.TextScorer](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("guardrail scorer factory: %w", err)
	}
	return &ScorerFactory{cache: cache}, nil
}

// Resolve returns the TextScorer for rule.Type, built from rule's own
// configuration for types that take one (regex, keyword), or from a
// built-in bank otherwise (pii, sensitive_data, prompt_injection,
// toxicity, hallucination).
func (f *ScorerFactory) Resolve(rule guardraildomain.RuleConfig) (scorers.TextScorer, error) {
	key := scorerKey{ruleType: rule.Type, config: ruleConfigKey(rule)}
	if cached, ok := f.cache.Get(key); ok {
		return cached, nil
	}

	scorer, err := buildScorer(rule)
	if err != nil {
		return nil, err
	}
	f.cache.Add(key, scorer)
	return scorer, nil
}

func ruleConfigKey(rule guardraildomain.RuleConfig) string {
	switch rule.Type {
	case guardraildomain.RuleRegex:
		return fmt.Sprintf("%v", rule.Patterns)
	case guardraildomain.RuleKeyword:
		return fmt.Sprintf("%v", rule.Keywords)
	default:
		return ""
	}
}

func buildScorer(rule guardraildomain.RuleConfig) (scorers.TextScorer, error) {
	switch rule.Type {
	case guardraildomain.RulePromptInjection:
		return scorers.NewPromptInjectionScorer(), nil
	case guardraildomain.RuleToxicity:
		return scorers.NewToxicityScorer(), nil
	case guardraildomain.RuleHallucination:
		return scorers.NewHallucinationScorer(), nil
	case guardraildomain.RulePII:
		return scorers.NewPIIScorer()
	case guardraildomain.RuleSensitiveData:
		return scorers.NewSensitiveDataScorer()
	case guardraildomain.RuleKeyword:
		return scorers.NewRuleKeywordScorer(rule.Keywords), nil
	case guardraildomain.RuleRegex:
		return scorers.NewRuleRegexScorer(rule.Patterns)
	default:
		return nil, fmt.Errorf("guardrail scorer factory: unknown rule type %q", rule.Type)
	}
}
