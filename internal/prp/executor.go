package prp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/droverdev/drover/internal/agent"
	"github.com/droverdev/drover/internal/backlog"
	"github.com/droverdev/drover/internal/mcp"
)

const coderSystem = `You are a software implementation agent. You receive an
implementation blueprint for one subtask. Apply the implementation steps to
the working tree, honoring the contract in the blueprint. Report the outcome
as JSON: result "success" when the work is applied, "error" for a transient
failure worth retrying, "issue" when something in the task itself needs human
inspection. Put details in message.`

// Execute runs a generated blueprint through the coder agent and the
// progressive validation gates, checkpointing at every stage boundary. Gate
// failures feed a fix cycle: the failing gate's output goes back to the coder
// and validation resumes from the failing level. The fix budget is shared
// across all gates. On full success the working tree is committed through the
// git tool.
func (r *Runtime) Execute(ctx context.Context, sub *backlog.Subtask, bp *Blueprint) error {
	cp := r.checkpointer(sub.ID)
	prpPath := r.mgr.Session().BlueprintPath(sub.ID)

	if err := cp.Record(StagePreExecution, CheckpointState{
		PRPPath: prpPath,
		Stage:   StagePreExecution,
	}, nil); err != nil {
		slog.Warn("failed to record checkpoint", "subtask", sub.ID, "stage", StagePreExecution, "error", err)
	}

	outcome, err := r.runCoder(ctx, sub, r.coderPrompt(sub, bp))
	if err != nil {
		r.recordCancelled(ctx, cp, prpPath, sub.ID)
		return err
	}

	if err := cp.Record(StageCoderResponse, CheckpointState{
		PRPPath:       prpPath,
		Stage:         StageCoderResponse,
		CoderResponse: outcome.Message,
		CoderResult:   outcome.Result,
	}, nil); err != nil {
		slog.Warn("failed to record checkpoint", "subtask", sub.ID, "stage", StageCoderResponse, "error", err)
	}

	if err := r.runGates(ctx, cp, sub, bp, prpPath, outcome); err != nil {
		r.recordCancelled(ctx, cp, prpPath, sub.ID)
		return err
	}

	r.commit(ctx, sub)
	return nil
}

// runGates walks the gate ladder with the shared fix budget. Validation
// resumes from the failing gate after each fix, not from gate one.
func (r *Runtime) runGates(ctx context.Context, cp *Checkpointer, sub *backlog.Subtask, bp *Blueprint, prpPath string, coder agent.Outcome) error {
	var results []GateResult
	fixesUsed := 0

	i := 0
	for i < len(r.gates) {
		if err := ctx.Err(); err != nil {
			return err
		}

		g := r.gates[i]
		out := runGate(ctx, r.workDir, g, r.grace)

		res := GateResult{
			Level:      g.Level,
			Name:       g.Name,
			Passed:     out.Passed,
			ExitCode:   out.ExitCode,
			Output:     truncateOutput(out.Output),
			DurationMs: out.Duration.Milliseconds(),
		}
		results = append(results, res)

		state := CheckpointState{
			PRPPath:           prpPath,
			Stage:             StageValidationGate(g.Level),
			CoderResponse:     coder.Message,
			CoderResult:       coder.Result,
			ValidationResults: results,
			FixAttempt:        fixesUsed,
		}

		if out.Manual {
			_ = cp.Record(StageValidationGate(g.Level), state, &CheckpointError{
				Message: fmt.Sprintf("gate %d (%s) requires manual sign-off", g.Level, g.Name),
				Code:    "manual",
			})
			return fmt.Errorf("%w: gate %d (%s)", ErrManualGate, g.Level, g.Name)
		}

		if out.Passed {
			if err := cp.Record(StageValidationGate(g.Level), state, nil); err != nil {
				slog.Warn("failed to record checkpoint", "subtask", sub.ID, "gate", g.Level, "error", err)
			}
			slog.Info("gate passed", "subtask", sub.ID, "gate", g.Level, "name", g.Name)
			i++
			continue
		}

		_ = cp.Record(StageValidationGate(g.Level), state, &CheckpointError{
			Message: fmt.Sprintf("gate %d (%s) failed with exit code %d", g.Level, g.Name, out.ExitCode),
		})

		if fixesUsed >= r.fixAttempts {
			slog.Error("fix budget exhausted", "subtask", sub.ID, "gate", g.Level, "fixes_used", fixesUsed)
			return fmt.Errorf("%w: gate %d (%s) after %d fix attempts",
				ErrGateFailure, g.Level, g.Name, fixesUsed)
		}

		fixesUsed++
		slog.Warn("gate failed, dispatching fix",
			"subtask", sub.ID, "gate", g.Level, "exit_code", out.ExitCode,
			"fix_attempt", fixesUsed, "fix_budget", r.fixAttempts)

		fixed, err := r.runCoder(ctx, sub, r.fixPrompt(sub, bp, g, out, fixesUsed))
		if err != nil {
			return err
		}
		coder = fixed

		// The label carries the attempt number; the stage stays within the
		// gate enum so consumers can resume from the failing gate.
		label := fmt.Sprintf("fix-attempt-%d", fixesUsed)
		if err := cp.Record(label, CheckpointState{
			PRPPath:       prpPath,
			Stage:         StageValidationGate(g.Level),
			CoderResponse: fixed.Message,
			CoderResult:   fixed.Result,
			FixAttempt:    fixesUsed,
		}, nil); err != nil {
			slog.Warn("failed to record checkpoint", "subtask", sub.ID, "stage", label, "error", err)
		}
		// Re-run the same gate; earlier gates stay passed.
	}

	return nil
}

// runCoder prompts the coder agent with transient-failure retries. Transport
// errors and "error" outcomes retry; an "issue" outcome is terminal.
func (r *Runtime) runCoder(ctx context.Context, sub *backlog.Subtask, prompt string) (agent.Outcome, error) {
	retryable := func(err error) bool {
		return !errors.Is(err, ErrCoderIssue)
	}

	outcome, err := agent.Retry(ctx, r.retry, "coder-execute", retryable, func() (agent.Outcome, error) {
		raw, err := r.agents.Coder.Prompt(ctx, agent.PromptSpec{
			System:      coderSystem,
			User:        prompt,
			Schema:      agent.ReflectType[agent.Outcome](),
			Model:       r.models.Coder,
			Temperature: r.temperature,
			MaxTokens:   r.maxTokens,
		})
		if err != nil {
			return agent.Outcome{}, err
		}
		out, err := agent.DecodeOutcome(raw)
		if err != nil {
			return agent.Outcome{}, fmt.Errorf("decoding coder outcome: %w", err)
		}
		switch out.Result {
		case agent.ResultSuccess:
			return out, nil
		case agent.ResultIssue:
			return out, fmt.Errorf("%w: %s", ErrCoderIssue, out.Message)
		default:
			return out, fmt.Errorf("coder reported error: %s", out.Message)
		}
	})
	if err != nil {
		if errors.Is(err, ErrCoderIssue) {
			return outcome, err
		}
		return outcome, fmt.Errorf("%w: %s: %v", ErrCoderExecution, sub.ID, err)
	}
	return outcome, nil
}

// coderPrompt composes the initial implementation prompt from the blueprint
// and the tool surface.
func (r *Runtime) coderPrompt(sub *backlog.Subtask, bp *Blueprint) string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Implement subtask %s: %s\n\n", sub.ID, sub.Title)
	buf.WriteString("## Objective\n\n")
	buf.WriteString(bp.Objective)
	buf.WriteString("\n\n## Context\n\n")
	buf.WriteString(bp.Context)
	buf.WriteString("\n\n## Implementation Steps\n\n")
	for i, step := range bp.ImplementationSteps {
		fmt.Fprintf(&buf, "%d. %s\n", i+1, step)
	}
	buf.WriteString("\n## Success Criteria\n\n")
	for _, c := range bp.SuccessCriteria {
		fmt.Fprintf(&buf, "- %s\n", c)
	}

	r.appendToolSurface(&buf)
	return buf.String()
}

// fixPrompt composes the fix-cycle prompt around one failing gate.
func (r *Runtime) fixPrompt(sub *backlog.Subtask, bp *Blueprint, g Gate, out GateOutcome, attempt int) string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Fix attempt %d for subtask %s: %s\n\n", attempt, sub.ID, sub.Title)
	fmt.Fprintf(&buf, "Validation gate %d (%s) failed with exit code %d.\n\n", g.Level, g.Name, out.ExitCode)
	fmt.Fprintf(&buf, "## Command\n\n    %s\n\n", g.Command)
	buf.WriteString("## Output\n\n```\n")
	buf.WriteString(truncateOutput(out.Output))
	buf.WriteString("\n```\n")
	buf.WriteString("\n## Original Objective\n\n")
	buf.WriteString(bp.Objective)
	buf.WriteString("\n\nApply the minimal change that makes this gate pass without regressing earlier gates.\n")

	r.appendToolSurface(&buf)
	return buf.String()
}

// appendToolSurface lists the registered tools the agent may invoke.
func (r *Runtime) appendToolSurface(buf *strings.Builder) {
	if r.tools == nil {
		return
	}
	tools := r.tools.List()
	if len(tools) == 0 {
		return
	}
	buf.WriteString("\n## Available Tools\n\n")
	for _, t := range tools {
		fmt.Fprintf(buf, "- %s: %s\n", t.FullName(), t.Description)
	}
}

// commit stages and commits the working tree through the git tool. Commit
// failure never fails the subtask; an empty tree or missing repo just logs.
func (r *Runtime) commit(ctx context.Context, sub *backlog.Subtask) {
	if r.tools == nil {
		return
	}
	msg := fmt.Sprintf("%s: %s", sub.ID, sub.Title)
	if _, err := r.tools.Call(ctx, "git__commit", mcp.CommitInput{Message: msg}); err != nil {
		slog.Warn("commit failed after validation", "subtask", sub.ID, "error", err)
		return
	}
	slog.Info("committed subtask changes", "subtask", sub.ID)
}

// recordCancelled writes the cancellation checkpoint when the context ended
// the run mid-stage.
func (r *Runtime) recordCancelled(ctx context.Context, cp *Checkpointer, prpPath, subtaskID string) {
	if ctx.Err() == nil {
		return
	}
	if err := cp.Record(StageCancelled, CheckpointState{
		PRPPath: prpPath,
		Stage:   StageCancelled,
	}, &CheckpointError{Message: ctx.Err().Error(), Code: "cancelled"}); err != nil {
		slog.Warn("failed to record cancellation checkpoint", "subtask", subtaskID, "error", err)
	}
}

// gate output stored in checkpoints is capped so checkpoint files stay small.
const maxGateOutput = 8 * 1024

func truncateOutput(s string) string {
	if len(s) <= maxGateOutput {
		return s
	}
	return s[:maxGateOutput] + "\n... (truncated)"
}
