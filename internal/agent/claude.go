package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// ClaudeAgent implements Agent over the Anthropic Messages API.
type ClaudeAgent struct {
	client  anthropic.Client
	model   string
	timeout time.Duration
	retry   RetryConfig
}

// ClaudeOption customizes a ClaudeAgent.
type ClaudeOption func(*ClaudeAgent)

// WithTimeout sets the per-call transport timeout.
func WithTimeout(d time.Duration) ClaudeOption {
	return func(a *ClaudeAgent) { a.timeout = d }
}

// WithRetry sets the transient-failure retry policy.
func WithRetry(cfg RetryConfig) ClaudeOption {
	return func(a *ClaudeAgent) { a.retry = cfg }
}

// NewClaudeAgent creates an agent bound to one model.
func NewClaudeAgent(apiKey, model string, opts ...ClaudeOption) *ClaudeAgent {
	a := &ClaudeAgent{
		client:  anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:   model,
		timeout: 5 * time.Minute,
		retry:   DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Prompt sends one request and extracts the structured JSON response. The
// response schema, when present, is appended to the user text so the model
// knows the exact shape to emit.
func (a *ClaudeAgent) Prompt(ctx context.Context, spec PromptSpec) (json.RawMessage, error) {
	model := spec.Model
	if model == "" {
		model = a.model
	}
	maxTokens := spec.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 8192
	}

	user := spec.User
	if spec.Schema != nil {
		user += "\n\nRespond with ONLY a JSON document conforming to this schema, no markdown fences, no prose:\n" + SchemaJSON(spec.Schema)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{{
			Role: anthropic.MessageParamRoleUser,
			Content: []anthropic.ContentBlockParamUnion{
				anthropic.NewTextBlock(user),
			},
		}},
	}
	params.Temperature = anthropic.Float(spec.Temperature)
	if spec.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: spec.System}}
	}

	slog.Debug("prompting agent", "model", model, "prompt_len", len(user))

	message, err := Retry(ctx, a.retry, "messages.new", isRetryableClaudeError, func() (*anthropic.Message, error) {
		callCtx, cancel := context.WithTimeout(ctx, a.timeout)
		defer cancel()
		msg, err := a.client.Messages.New(callCtx, params)
		if err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return msg, err
	})
	if err != nil {
		if errors.Is(err, ErrTimeout) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	var text string
	for _, content := range message.Content {
		if content.Type == "text" {
			text += content.Text
		}
	}
	if text == "" {
		return nil, fmt.Errorf("%w: empty response", ErrTransport)
	}

	return ExtractJSON(text)
}

// isRetryableClaudeError reports whether an API error is transient: rate
// limits, overload, and gateway failures.
func isRetryableClaudeError(err error) bool {
	if errors.Is(err, ErrTimeout) {
		return true
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 429, 503, 504, 529:
			return true
		}
	}
	return false
}
