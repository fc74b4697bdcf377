package agent

import (
	"context"
	"encoding/json"
	"sync"
)

// MockAgent is a scripted test double for Agent. Responses are consumed in
// FIFO order; when the queue is empty the Default response is returned.
type MockAgent struct {
	mu        sync.Mutex
	Responses []string
	Default   string
	Err       error
	Calls     []PromptSpec
}

// NewMockAgent creates a MockAgent with a benign default response.
func NewMockAgent() *MockAgent {
	return &MockAgent{Default: `{"result":"success","message":"ok"}`}
}

// Enqueue appends scripted responses.
func (m *MockAgent) Enqueue(responses ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Responses = append(m.Responses, responses...)
}

func (m *MockAgent) Prompt(_ context.Context, spec PromptSpec) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, spec)

	if m.Err != nil {
		return nil, m.Err
	}

	resp := m.Default
	if len(m.Responses) > 0 {
		resp = m.Responses[0]
		m.Responses = m.Responses[1:]
	}
	return ExtractJSON(resp)
}

// CallCount returns the number of prompts received.
func (m *MockAgent) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}
