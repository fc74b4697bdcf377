// Package agent defines the narrow contract between the orchestration core
// and its LLM-backed collaborators. Each agent exposes a single operation:
// Prompt takes a spec (system text, user text, response schema, model
// configuration) and returns a structured JSON response. The core is written
// against this contract only, so transports are replaceable and tests run
// against deterministic stubs.
package agent

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/invopop/jsonschema"
)

// Transport-level failures. Both enter the caller's retry path.
var (
	ErrTransport = errors.New("agent transport error")
	ErrTimeout   = errors.New("agent timeout")
)

// PromptSpec is the single-operation request to an agent.
type PromptSpec struct {
	System      string
	User        string
	Schema      *jsonschema.Schema
	Model       string
	Temperature float64
	MaxTokens   int64
}

// Agent is an opaque request/response collaborator. A non-nil error is a
// transport failure; application-level failures arrive as an Outcome payload
// with Result "error" or "issue".
type Agent interface {
	Prompt(ctx context.Context, spec PromptSpec) (json.RawMessage, error)
}

// Outcome result values.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultIssue   = "issue"
)

// Outcome is the structured result contract shared by executing agents.
type Outcome struct {
	Result  string `json:"result" jsonschema:"enum=success,enum=error,enum=issue"`
	Message string `json:"message"`
}

// DecodeOutcome parses an agent response into an Outcome.
func DecodeOutcome(raw json.RawMessage) (Outcome, error) {
	var out Outcome
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, err
	}
	return out, nil
}

// Roster groups the specialized agents the pipeline coordinates.
type Roster struct {
	Architect  Agent
	Researcher Agent
	Coder      Agent
	QA         Agent
}
