package orchestrator

import (
	"context"
	"fmt"

	"github.com/droverdev/drover/internal/agent"
	"github.com/droverdev/drover/internal/backlog"
	"github.com/droverdev/drover/internal/config"
)

const architectSystem = `You are a software architect agent. Decompose a
product requirements document into a four-level backlog: phases, milestones,
tasks, subtasks. IDs follow the dotted grammar (P1, P1.M1, P1.M1.T1,
P1.M1.T1.S1). Every item starts with status "Planned". Subtasks carry story
points (1-21), dependencies on earlier subtask ids only, and a context_scope
holding a CONTRACT DEFINITION block:

CONTRACT DEFINITION:
1. RESEARCH NOTE: <what to investigate first>
2. INPUT: <what the subtask consumes>
3. LOGIC: <what it does>
4. OUTPUT: <what it produces>`

// Decompose turns a PRD into a schema-valid backlog via the architect agent.
// Schema or validation failures retry within the standard backoff policy.
func Decompose(ctx context.Context, cfg *config.Config, architect agent.Agent, prd string) (*backlog.Backlog, error) {
	retry := agent.RetryConfig{
		MaxAttempts: cfg.Agent.MaxAttempts,
		BaseDelay:   cfg.Agent.ParseBaseDelay(),
		Jitter:      0.2,
	}

	prompt := fmt.Sprintf("Decompose this PRD into a backlog.\n\n## PRD\n\n%s\n", prd)
	schema := agent.ReflectType[backlog.Backlog]()

	b, err := agent.Retry(ctx, retry, "architect-decompose", func(error) bool { return true },
		func() (*backlog.Backlog, error) {
			raw, err := architect.Prompt(ctx, agent.PromptSpec{
				System:      architectSystem,
				User:        prompt,
				Schema:      schema,
				Model:       cfg.Models.Architect,
				Temperature: cfg.Agent.Temperature,
				MaxTokens:   cfg.Agent.MaxTokens,
			})
			if err != nil {
				return nil, err
			}
			return backlog.Decode(raw)
		})
	if err != nil {
		return nil, fmt.Errorf("decomposing PRD: %w", err)
	}
	return b, nil
}
