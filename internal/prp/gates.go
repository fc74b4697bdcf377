package prp

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"syscall"
	"time"
)

// Gate is one progressive validation level. A gate with an empty command is
// manual: it passes unless RequireManual is set.
type Gate struct {
	Level         int
	Name          string
	Command       string
	Timeout       time.Duration
	RequireManual bool
}

// GateOutcome is the result of running one gate.
type GateOutcome struct {
	Gate     Gate
	Passed   bool
	Manual   bool // gate requires human sign-off; run pauses in Validating
	ExitCode int
	Output   string
	Duration time.Duration
}

// runGate executes a gate command in its own process group so that
// cancellation and timeout reach the whole child tree: SIGTERM first, then
// SIGKILL after the grace period.
func runGate(ctx context.Context, workDir string, g Gate, grace time.Duration) GateOutcome {
	out := GateOutcome{Gate: g}

	if g.Command == "" {
		if g.RequireManual {
			out.Manual = true
			return out
		}
		out.Passed = true
		return out
	}

	start := time.Now()
	var buf bytes.Buffer

	cmd := exec.Command("sh", "-c", g.Command)
	cmd.Dir = workDir
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		out.ExitCode = -1
		out.Output = fmt.Sprintf("starting gate command: %v", err)
		out.Duration = time.Since(start)
		return out
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	timeout := g.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var waitErr error
	select {
	case waitErr = <-done:
	case <-ctx.Done():
		waitErr = terminate(cmd, grace, done)
	case <-timer.C:
		slog.Warn("gate timed out", "gate", g.Name, "level", g.Level, "timeout", timeout)
		waitErr = terminate(cmd, grace, done)
	}

	out.Duration = time.Since(start)
	out.Output = buf.String()

	if waitErr == nil {
		out.Passed = true
		return out
	}
	if exitErr, ok := waitErr.(*exec.ExitError); ok {
		out.ExitCode = exitErr.ExitCode()
	} else {
		out.ExitCode = -1
	}
	return out
}

// terminate signals the gate's process group: SIGTERM, then SIGKILL once the
// grace period elapses.
func terminate(cmd *exec.Cmd, grace time.Duration, done chan error) error {
	pgid := -cmd.Process.Pid
	_ = syscall.Kill(pgid, syscall.SIGTERM)

	if grace <= 0 {
		grace = 5 * time.Second
	}
	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		_ = syscall.Kill(pgid, syscall.SIGKILL)
		return <-done
	}
}
