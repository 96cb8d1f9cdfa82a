package scorers

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"evalforge/internal/adapters"
	dialects "evalforge/internal/scorers/template"

	evaldomain "evalforge/internal/core/domain/eval"
)

// LLMJudgeScorer asks a judge model to grade a generated output against
// the expected one, using a prompt template rendered through one of the
// dialects package's compilers (simple/mustache/jinja2) so the template
// author can pick whichever substitution syntax an existing prompt
// library already uses (§4.3, §9 design notes). This is the one scorer
// kind the spec allows to perform I/O beyond the adapter call itself.
type LLMJudgeScorer struct {
	name     string
	client   adapters.ChatClient
	model    string
	template string
	dialect  dialects.TemplateDialect
	registry dialects.DialectRegistry
}

// NewLLMJudgeScorer builds a judge scorer. template is rendered with
// variables "input", "expected", "output" before being sent to the judge
// model as the sole user message; dialect may be dialects.DialectAuto to
// sniff the syntax from the template content.
func NewLLMJudgeScorer(name string, client adapters.ChatClient, model, template string, dialect dialects.TemplateDialect) *LLMJudgeScorer {
	if dialect == "" {
		dialect = dialects.DialectAuto
	}
	return &LLMJudgeScorer{
		name:     name,
		client:   client,
		model:    model,
		template: template,
		dialect:  dialect,
		registry: dialects.NewRegistry(),
	}
}

func (s *LLMJudgeScorer) Name() string { return s.name }

func (s *LLMJudgeScorer) Score(ctx context.Context, item evaldomain.DatasetItem, response map[string]interface{}) ([]evaldomain.Score, error) {
	dialect := s.dialect
	if dialect == dialects.DialectAuto {
		dialect = s.registry.Detect(s.template)
	}
	compiler, err := s.registry.Get(dialect)
	if err != nil {
		return nil, fmt.Errorf("llm judge %s: %w", s.name, err)
	}

	vars := map[string]any{
		"input":    item.Input,
		"expected": item.Expected,
		"output":   outputString(response),
	}
	prompt, err := compiler.Compile(s.template, vars)
	if err != nil {
		return nil, fmt.Errorf("llm judge %s: render prompt: %w", s.name, err)
	}

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: "You are a strict grader. Respond with JSON: {\"score\": <0..1>, \"reason\": \"...\"}."},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("llm judge %s: judge call: %w", s.name, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("llm judge %s: empty judge response", s.name)
	}

	value, reason := parseJudgeVerdict(resp.Choices[0].Message.Content)
	return []evaldomain.Score{{
		Name:   s.name,
		Value:  value,
		Passed: value >= 0.5,
		EvalID: s.name + ".v1",
		Reason: reason,
	}}, nil
}

// parseJudgeVerdict reads {"score": float, "reason": string} from a
// judge model's response, falling back to scanning for a bare number if
// the model did not return valid JSON.
func parseJudgeVerdict(content string) (float64, string) {
	var verdict struct {
		Score  float64 `json:"score"`
		Reason string  `json:"reason"`
	}
	trimmed := strings.TrimSpace(content)
	if i := strings.Index(trimmed, "{"); i >= 0 {
		if j := strings.LastIndex(trimmed, "}"); j > i {
			trimmed = trimmed[i : j+1]
		}
	}
	if err := json.Unmarshal([]byte(trimmed), &verdict); err == nil {
		return verdict.Score, verdict.Reason
	}

	for _, field := range strings.Fields(content) {
		if v, err := strconv.ParseFloat(strings.Trim(field, ".,"), 64); err == nil {
			return v, content
		}
	}
	return 0, content
}
