// Package adapters provides the built-in Adapter implementations (§4.2):
// an HTTP/chat-completion adapter, an SSE-streaming adapter that captures
// an enriched-output envelope, and a trace-reading adapter that replays
// a previously recorded generation instead of invoking a model.
package adapters

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"

	evaldomain "evalforge/internal/core/domain/eval"
)

// ChatClient is the subset of the OpenAI-compatible client the HTTP and
// SSE adapters depend on, so tests can substitute a fake without a live
// API key. go-openai's *openai.Client satisfies it directly.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	CreateChatCompletionStream(ctx context.Context, req openai.ChatCompletionRequest) (*openai.ChatCompletionStream, error)
}

// HTTPAdapter invokes a chat-completion endpoint for each dataset item
// and returns the generated text (§4.2 "HTTP"). DatasetItem.Input is
// expected to carry either a "prompt" string (wrapped as a single user
// message) or a "messages" list already shaped like chat messages.
type HTTPAdapter struct {
	client     ChatClient
	model      string
	systemPrompt string
	maxRetries int
	timeout    time.Duration
}

// HTTPAdapterOption configures an HTTPAdapter at construction.
type HTTPAdapterOption func(*HTTPAdapter)

func WithSystemPrompt(prompt string) HTTPAdapterOption {
	return func(a *HTTPAdapter) { a.systemPrompt = prompt }
}

func WithMaxRetries(n int) HTTPAdapterOption {
	return func(a *HTTPAdapter) { a.maxRetries = n }
}

func WithTimeout(d time.Duration) HTTPAdapterOption {
	return func(a *HTTPAdapter) { a.timeout = d }
}

// NewHTTPAdapter builds an adapter backed by client, defaulting to model
// when a run does not override it. Grounded on the teacher's
// internal/infrastructure/providers/openai client, whose retry-on-
// transient-error loop this adapter's Invoke reuses.
func NewHTTPAdapter(client ChatClient, model string, opts ...HTTPAdapterOption) *HTTPAdapter {
	a := &HTTPAdapter{client: client, model: model, maxRetries: 2, timeout: 30 * time.Second}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *HTTPAdapter) Name() string { return "http" }

// Invoke sends item's prompt to the configured chat model and returns its
// text response. Any failure (network, timeout, non-2xx) is returned as
// a plain error; the engine is responsible for turning that into a
// generation_error Score rather than aborting the run (§4.2, §7).
func (a *HTTPAdapter) Invoke(ctx context.Context, item evaldomain.DatasetItem) (map[string]interface{}, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model:    a.model,
		Messages: a.messagesFor(item),
	}

	var resp openai.ChatCompletionResponse
	var err error
	for attempt := 0; attempt <= a.maxRetries; attempt++ {
		resp, err = a.client.CreateChatCompletion(ctx, req)
		if err == nil {
			break
		}
		if !isRetryable(err) {
			break
		}
		if attempt < a.maxRetries {
			select {
			case <-time.After(time.Duration(attempt+1) * 200 * time.Millisecond):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("http adapter: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("http adapter: empty response")
	}

	return map[string]interface{}{
		"output":            resp.Choices[0].Message.Content,
		"completion_tokens": resp.Usage.CompletionTokens,
		"prompt_tokens":     resp.Usage.PromptTokens,
		"total_tokens":      resp.Usage.TotalTokens,
	}, nil
}

func (a *HTTPAdapter) messagesFor(item evaldomain.DatasetItem) []openai.ChatCompletionMessage {
	var messages []openai.ChatCompletionMessage
	if a.systemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: a.systemPrompt})
	}
	if raw, ok := item.Input["messages"].([]interface{}); ok {
		for _, m := range raw {
			mm, ok := m.(map[string]interface{})
			if !ok {
				continue
			}
			role, _ := mm["role"].(string)
			content, _ := mm["content"].(string)
			messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: content})
		}
		return messages
	}
	prompt, _ := item.Input["prompt"].(string)
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt})
	return messages
}

// isRetryable treats everything except a nil error as potentially
// transient; go-openai wraps non-2xx responses in *openai.APIError which
// carries enough detail for future refinement, but the generation_error
// fallback path (§4.2) means an overly broad retry policy here is never
// unsafe, only wasteful.
func isRetryable(err error) bool {
	return err != nil
}
