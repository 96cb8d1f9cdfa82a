package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	openai "github.com/sashabaranov/go-openai"

	evaldomain "evalforge/internal/core/domain/eval"
)

// EnrichedOutputKind tags the shape of an adapter's structured output so
// wrapper scorers can recognize it without a type assertion on every
// field (§9 "Enriched-output envelope").
const EnrichedOutputKind = "_kind"

// EnrichedKindSSE marks a response map produced by SSEAdapter.
const EnrichedKindSSE = "sse_enriched"

// ToolCall is one tool invocation captured from a streamed response.
type ToolCall struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// SSEAdapter consumes a server-sent-events chat-completion stream,
// accumulating text deltas, tool-call records, and latency/token
// counters into an enriched-output envelope (§4.2 "SSE-streaming", §9).
type SSEAdapter struct {
	client ChatClient
	model  string
}

func NewSSEAdapter(client ChatClient, model string) *SSEAdapter {
	return &SSEAdapter{client: client, model: model}
}

func (a *SSEAdapter) Name() string { return "sse" }

// Enriched implements evalsvc.EnrichedAdapter: every response this
// adapter returns is the tagged sse_enriched envelope, so the engine
// always wraps resolved scorers in the enriched-output unwrapper for it.
func (a *SSEAdapter) Enriched() bool { return true }

// Invoke streams the completion and returns an enriched envelope:
// {_kind: "sse_enriched", final_output, metrics: {latency_ms,
// completion_tokens, prompt_tokens}, tools_called, events}. The
// enriched-output scorer wrapper (internal/scorers) unwraps final_output
// before handing it to the wrapped scorer and promotes metrics into the
// resulting Score's metadata.
func (a *SSEAdapter) Invoke(ctx context.Context, item evaldomain.DatasetItem) (map[string]interface{}, error) {
	start := time.Now()

	prompt, _ := item.Input["prompt"].(string)
	req := openai.ChatCompletionRequest{
		Model:    a.model,
		Messages: []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleUser, Content: prompt}},
		Stream:   true,
	}

	stream, err := a.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("sse adapter: open stream: %w", err)
	}
	defer stream.Close()

	var finalOutput string
	var events []map[string]interface{}
	var toolCalls []ToolCall
	var completionTokens, promptTokens int

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("sse adapter: stream recv: %w", err)
		}
		if resp.Usage != nil {
			completionTokens = resp.Usage.CompletionTokens
			promptTokens = resp.Usage.PromptTokens
		}
		for _, choice := range resp.Choices {
			if choice.Delta.Content != "" {
				finalOutput += choice.Delta.Content
				events = append(events, map[string]interface{}{"type": "delta", "content": choice.Delta.Content})
			}
			for _, tc := range choice.Delta.ToolCalls {
				var args map[string]interface{}
				if tc.Function.Arguments != "" {
					_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
				}
				toolCalls = append(toolCalls, ToolCall{Name: tc.Function.Name, Arguments: args})
				events = append(events, map[string]interface{}{"type": "tool_call", "name": tc.Function.Name})
			}
		}
	}

	return map[string]interface{}{
		EnrichedOutputKind: EnrichedKindSSE,
		"final_output":     finalOutput,
		"tools_called":     toolCalls,
		"events":           events,
		"metrics": map[string]interface{}{
			"latency_ms":        time.Since(start).Milliseconds(),
			"completion_tokens": completionTokens,
			"prompt_tokens":     promptTokens,
		},
	}, nil
}
