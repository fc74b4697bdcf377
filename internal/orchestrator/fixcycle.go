package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/droverdev/drover/internal/agent"
	"github.com/droverdev/drover/internal/backlog"
)

// maxReviewIssues bounds how many reviewer issues one pass will act on.
const maxReviewIssues = 5

// Issue is one reviewer finding tied to a completed subtask.
type Issue struct {
	SubtaskID string `json:"subtaskId" jsonschema:"required,description=ID of the subtask the issue belongs to"`
	Summary   string `json:"summary" jsonschema:"required,description=What is wrong and where"`
	Severity  string `json:"severity" jsonschema:"enum=low,enum=medium,enum=high"`
}

// reviewReport is the QA agent's response payload.
type reviewReport struct {
	Issues []Issue `json:"issues"`
}

const qaSystem = `You are a software QA review agent. You receive the outcome
of an automated implementation run: which subtasks completed and which
failed. Review the completed work for likely defects (missed requirements,
contract violations, suspicious shortcuts) and report issues tied to subtask
ids. Report an empty issue list when the work looks sound.`

// ReviewAndFix runs the post-run QA pass: the QA agent reviews the run
// outcome and its issues drive bounded fix sub-runs against completed
// subtasks. Returns the number of issues fixed. Review failures are logged
// and swallowed; the run's own result stands.
func (o *Orchestrator) ReviewAndFix(ctx context.Context, s Summary) (int, error) {
	if !o.cfg.Run.QAReview || o.agents.QA == nil {
		return 0, nil
	}

	b := o.mgr.Backlog()
	if b == nil {
		return 0, nil
	}

	raw, err := o.agents.QA.Prompt(ctx, agent.PromptSpec{
		System:      qaSystem,
		User:        reviewPrompt(b, s),
		Schema:      agent.ReflectType[reviewReport](),
		Model:       o.cfg.Models.QA,
		Temperature: o.cfg.Agent.Temperature,
		MaxTokens:   o.cfg.Agent.MaxTokens,
	})
	if err != nil {
		slog.Warn("qa review failed, skipping fix cycle", "error", err)
		return 0, nil
	}

	report, err := agent.DecodeInto[reviewReport](string(raw))
	if err != nil {
		slog.Warn("qa review response unreadable, skipping fix cycle", "error", err)
		return 0, nil
	}
	if len(report.Issues) == 0 {
		slog.Info("qa review found no issues")
		return 0, nil
	}

	issues := report.Issues
	if len(issues) > maxReviewIssues {
		slog.Warn("qa review issue list truncated", "reported", len(issues), "limit", maxReviewIssues)
		issues = issues[:maxReviewIssues]
	}

	fixed := 0
	for _, issue := range issues {
		if ctx.Err() != nil {
			break
		}
		sub, ok := b.FindSubtask(issue.SubtaskID)
		if !ok {
			slog.Warn("qa issue references unknown subtask", "subtask", issue.SubtaskID)
			continue
		}
		if sub.Status != backlog.StatusComplete {
			slog.Debug("qa issue skipped, subtask not complete",
				"subtask", issue.SubtaskID, "status", sub.Status)
			continue
		}

		slog.Info("applying qa fix", "subtask", issue.SubtaskID, "severity", issue.Severity)
		if err := o.runtime.FixIssue(ctx, sub, issue.Summary); err != nil {
			slog.Error("qa fix failed", "subtask", issue.SubtaskID, "error", err)
			continue
		}
		fixed++
	}
	return fixed, nil
}

// reviewPrompt summarizes the run for the QA agent: subtask outcomes in
// execution order plus the aggregate counts.
func reviewPrompt(b *backlog.Backlog, s Summary) string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Run finished: %d completed, %d failed, %d blocked of %d items.\n\n",
		s.Completed, s.Failed, s.Blocked, s.TotalItems)
	buf.WriteString("## Subtasks\n\n")
	for _, sub := range b.Subtasks() {
		fmt.Fprintf(&buf, "- %s [%s]: %s\n", sub.ID, sub.Status, sub.Title)
	}
	buf.WriteString("\nReview the completed subtasks and report issues.\n")
	return buf.String()
}
