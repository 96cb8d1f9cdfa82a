package scorers

import (
	"context"
	"fmt"

	"evalforge/internal/adapters"
	evaldomain "evalforge/internal/core/domain/eval"
)

// expectedToolCalls reads the ground-truth tool-call trajectory from an
// item's Expected map under the "tool_calls" key: a list of
// {"name": string, "arguments": map[string]interface{}} records.
func expectedToolCalls(item evaldomain.DatasetItem) []map[string]interface{} {
	raw, ok := item.Expected["tool_calls"].([]interface{})
	if !ok {
		return nil
	}
	calls := make([]map[string]interface{}, 0, len(raw))
	for _, r := range raw {
		if m, ok := r.(map[string]interface{}); ok {
			calls = append(calls, m)
		}
	}
	return calls
}

// actualToolCalls reads the adapter's recorded tool calls from the
// response's "tools_called" key, populated by the SSE adapter's enriched
// envelope as []adapters.ToolCall, or by a loader/replay path that has
// already decoded it to generic []interface{} maps (e.g. from JSON).
func actualToolCalls(response map[string]interface{}) []map[string]interface{} {
	switch raw := response["tools_called"].(type) {
	case []adapters.ToolCall:
		calls := make([]map[string]interface{}, 0, len(raw))
		for _, tc := range raw {
			calls = append(calls, map[string]interface{}{"name": tc.Name, "arguments": tc.Arguments})
		}
		return calls
	case []interface{}:
		calls := make([]map[string]interface{}, 0, len(raw))
		for _, r := range raw {
			if m, ok := r.(map[string]interface{}); ok {
				calls = append(calls, m)
			}
		}
		return calls
	default:
		return nil
	}
}

func toolName(call map[string]interface{}) string {
	n, _ := call["name"].(string)
	return n
}

// ToolCallAccuracyScorer compares the set of tools the adapter invoked
// against the expected set, scoring the fraction correctly called
// regardless of order (§9 supplement 3, grounded on the Python
// original's scorers/agent/tool_call_accuracy.py).
type ToolCallAccuracyScorer struct{}

func NewToolCallAccuracyScorer() *ToolCallAccuracyScorer { return &ToolCallAccuracyScorer{} }

func (s *ToolCallAccuracyScorer) Name() string { return "tool_call_accuracy" }

func (s *ToolCallAccuracyScorer) Score(ctx context.Context, item evaldomain.DatasetItem, response map[string]interface{}) ([]evaldomain.Score, error) {
	expected := expectedToolCalls(item)
	actual := actualToolCalls(response)

	if len(expected) == 0 {
		return []evaldomain.Score{{Name: s.Name(), Value: 1, Passed: true, EvalID: s.Name() + ".v1"}}, nil
	}

	actualNames := make(map[string]int, len(actual))
	for _, c := range actual {
		actualNames[toolName(c)]++
	}

	var matched int
	for _, c := range expected {
		name := toolName(c)
		if actualNames[name] > 0 {
			matched++
			actualNames[name]--
		}
	}

	accuracy := float64(matched) / float64(len(expected))
	return []evaldomain.Score{{
		Name:   s.Name(),
		Value:  accuracy,
		Passed: accuracy == 1,
		EvalID: s.Name() + ".v1",
		Reason: fmt.Sprintf("%d/%d expected tool calls matched", matched, len(expected)),
	}}, nil
}

// StepSelectionScorer compares the ordered sequence of tool names
// invoked against the expected sequence, passing only on an exact
// positional match (§9 supplement 3, grounded on scorers/agent/
// step_selection.py).
type StepSelectionScorer struct{}

func NewStepSelectionScorer() *StepSelectionScorer { return &StepSelectionScorer{} }

func (s *StepSelectionScorer) Name() string { return "step_selection" }

func (s *StepSelectionScorer) Score(ctx context.Context, item evaldomain.DatasetItem, response map[string]interface{}) ([]evaldomain.Score, error) {
	expected := expectedToolCalls(item)
	actual := actualToolCalls(response)

	if len(expected) == 0 {
		return []evaldomain.Score{{Name: s.Name(), Value: 1, Passed: true, EvalID: s.Name() + ".v1"}}, nil
	}

	passed := len(expected) == len(actual)
	if passed {
		for i := range expected {
			if toolName(expected[i]) != toolName(actual[i]) {
				passed = false
				break
			}
		}
	}

	return []evaldomain.Score{boolScore(s.Name(), passed, "")}, nil
}

// ParameterCorrectnessScorer compares each expected tool call's argument
// map against the corresponding actual call at the same step (§9
// supplement 3, grounded on scorers/agent/parameter_correctness.py).
type ParameterCorrectnessScorer struct{}

func NewParameterCorrectnessScorer() *ParameterCorrectnessScorer { return &ParameterCorrectnessScorer{} }

func (s *ParameterCorrectnessScorer) Name() string { return "parameter_correctness" }

func (s *ParameterCorrectnessScorer) Score(ctx context.Context, item evaldomain.DatasetItem, response map[string]interface{}) ([]evaldomain.Score, error) {
	expected := expectedToolCalls(item)
	actual := actualToolCalls(response)

	if len(expected) == 0 {
		return []evaldomain.Score{{Name: s.Name(), Value: 1, Passed: true, EvalID: s.Name() + ".v1"}}, nil
	}

	var correct int
	for i, exp := range expected {
		if i >= len(actual) {
			break
		}
		if argsEqual(exp["arguments"], actual[i]["arguments"]) {
			correct++
		}
	}

	accuracy := float64(correct) / float64(len(expected))
	return []evaldomain.Score{{
		Name:   s.Name(),
		Value:  accuracy,
		Passed: accuracy == 1,
		EvalID: s.Name() + ".v1",
		Reason: fmt.Sprintf("%d/%d steps had matching arguments", correct, len(expected)),
	}}, nil
}

func argsEqual(a, b interface{}) bool {
	am, aok := a.(map[string]interface{})
	bm, bok := b.(map[string]interface{})
	if !aok || !bok {
		return false
	}
	if len(am) != len(bm) {
		return false
	}
	for k, v := range am {
		if fmt.Sprint(bm[k]) != fmt.Sprint(v) {
			return false
		}
	}
	return true
}
