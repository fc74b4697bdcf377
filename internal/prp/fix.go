package prp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/droverdev/drover/internal/backlog"
)

// FixIssue applies a reviewer-reported issue to a completed subtask: the
// coder agent gets the issue description, then the syntax and unit gates
// re-run to confirm the fix did not regress. Integration and manual gates
// are left to the next full run.
func (r *Runtime) FixIssue(ctx context.Context, sub *backlog.Subtask, issue string) error {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Review found an issue in subtask %s: %s\n\n", sub.ID, sub.Title)
	buf.WriteString("## Issue\n\n")
	buf.WriteString(issue)
	buf.WriteString("\n\nApply the minimal fix for this issue.\n")
	r.appendToolSurface(&buf)

	outcome, err := r.runCoder(ctx, sub, buf.String())
	if err != nil {
		return err
	}
	slog.Debug("fix applied", "subtask", sub.ID, "result", outcome.Result)

	limit := 2
	if len(r.gates) < limit {
		limit = len(r.gates)
	}
	for _, g := range r.gates[:limit] {
		out := runGate(ctx, r.workDir, g, r.grace)
		if out.Manual {
			continue
		}
		if !out.Passed {
			return fmt.Errorf("%w: gate %d (%s) after review fix, exit code %d",
				ErrGateFailure, g.Level, g.Name, out.ExitCode)
		}
	}

	r.commit(ctx, sub)
	return nil
}
