package scorers

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	evaldomain "evalforge/internal/core/domain/eval"
)

// RegexScorer reports whether text matches any of a list of patterns,
// scoring 1 on a match and 0 otherwise. It backs both the general-purpose
// "regex" scorer and the "pii"/"sensitive_data" guardrail rule types,
// which differ only in their default pattern bank (§9 supplement 6).
type RegexScorer struct {
	name     string
	patterns []*regexp.Regexp
}

// NewRegexScorer compiles patterns once at construction and returns an
// error for an unparseable pattern. Guardrail policy validation does not
// compile patterns, so for a policy rule this error surfaces when the
// guardrail engine resolves the rule's scorer.
func NewRegexScorer(name string, patterns []string) (*RegexScorer, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("regex scorer %s: invalid pattern %q: %w", name, p, err)
		}
		compiled = append(compiled, re)
	}
	return &RegexScorer{name: name, patterns: compiled}, nil
}

func (s *RegexScorer) Name() string { return s.name }

func (s *RegexScorer) Score(ctx context.Context, item evaldomain.DatasetItem, response map[string]interface{}) ([]evaldomain.Score, error) {
	text := outputString(response)
	return []evaldomain.Score{s.ScoreText(text)}, nil
}

// ScoreText evaluates raw text directly, used by the guardrail engine
// (§4.9) which scores prompts/responses rather than DatasetItems.
func (s *RegexScorer) ScoreText(text string) evaldomain.Score {
	for _, re := range s.patterns {
		if loc := re.FindStringIndex(text); loc != nil {
			return evaldomain.Score{Name: s.name, Value: 1, Passed: true, EvalID: s.name + ".v1", Reason: fmt.Sprintf("matched pattern %q", re.String())}
		}
	}
	return evaldomain.Score{Name: s.name, Value: 0, Passed: false, EvalID: s.name + ".v1"}
}

// PIIPatterns is the default regex bank for the "pii" guardrail rule
// type: emails, phone numbers, SSN-shaped and credit-card-shaped digit
// runs (§9 supplement 6).
var PIIPatterns = []string{
	`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`,
	`\b\d{3}[-.\s]?\d{3}[-.\s]?\d{4}\b`,
	`\b\d{3}-\d{2}-\d{4}\b`,
	`\b(?:\d[ -]*?){13,16}\b`,
}

// SensitiveDataPatterns is the default regex bank for "sensitive_data":
// the PII bank plus API-key/secret-shaped tokens.
var SensitiveDataPatterns = append(append([]string{}, PIIPatterns...),
	`(?i)(api[_-]?key|secret|password)\s*[:=]\s*\S+`,
)

// KeywordScorer reports whether text contains any of a list of keywords
// (case-insensitive substring match), backing the general "keyword"
// scorer/rule type.
type KeywordScorer struct {
	name     string
	keywords []string
}

func NewKeywordScorer(name string, keywords []string) *KeywordScorer {
	lowered := make([]string, len(keywords))
	for i, k := range keywords {
		lowered[i] = strings.ToLower(k)
	}
	return &KeywordScorer{name: name, keywords: lowered}
}

func (s *KeywordScorer) Name() string { return s.name }

func (s *KeywordScorer) Score(ctx context.Context, item evaldomain.DatasetItem, response map[string]interface{}) ([]evaldomain.Score, error) {
	return []evaldomain.Score{s.ScoreText(outputString(response))}, nil
}

func (s *KeywordScorer) ScoreText(text string) evaldomain.Score {
	lowered := strings.ToLower(text)
	for _, kw := range s.keywords {
		if kw != "" && strings.Contains(lowered, kw) {
			return evaldomain.Score{Name: s.name, Value: 1, Passed: true, EvalID: s.name + ".v1", Reason: fmt.Sprintf("matched keyword %q", kw)}
		}
	}
	return evaldomain.Score{Name: s.name, Value: 0, Passed: false, EvalID: s.name + ".v1"}
}
