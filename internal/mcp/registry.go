// Package mcp implements the tool contract shared with the coder agents:
// tools register under a server name, are addressed by the full
// "<server>__<tool>" name, declare a JSON-Schema input, and run as
// context-aware functions. The orchestration core itself only touches the
// git tools; everything else is surface for the agents.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/invopop/jsonschema"
)

// Handler executes one tool invocation.
type Handler func(ctx context.Context, input json.RawMessage) (any, error)

// Tool is one registered tool.
type Tool struct {
	Server      string
	Name        string
	Description string
	InputSchema *jsonschema.Schema
	Handler     Handler
}

// FullName returns the invocation name: server and tool joined by a double
// underscore.
func (t Tool) FullName() string {
	return t.Server + "__" + t.Name
}

// Registry holds the registered tools for one run.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. Registering a duplicate full name is an error.
func (r *Registry) Register(t Tool) error {
	if t.Server == "" || t.Name == "" {
		return fmt.Errorf("tool must have server and name")
	}
	if t.Handler == nil {
		return fmt.Errorf("tool %s has no handler", t.FullName())
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.FullName()]; exists {
		return fmt.Errorf("tool %s already registered", t.FullName())
	}
	r.tools[t.FullName()] = t
	return nil
}

// Call invokes a tool by full name. The input is marshaled to JSON before
// being handed to the handler.
func (r *Registry) Call(ctx context.Context, fullName string, input any) (any, error) {
	r.mu.RLock()
	t, ok := r.tools[fullName]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown tool %q", fullName)
	}

	data, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("marshaling input for %s: %w", fullName, err)
	}
	return t.Handler(ctx, data)
}

// List returns all registered tools sorted by full name.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FullName() < out[j].FullName() })
	return out
}
