package prp

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRunGatePassing(t *testing.T) {
	g := Gate{Level: 1, Name: "syntax", Command: "true", Timeout: 5 * time.Second}
	out := runGate(context.Background(), t.TempDir(), g, time.Second)

	assert.True(t, out.Passed)
	assert.False(t, out.Manual)
	assert.Equal(t, 0, out.ExitCode)
}

func TestRunGateFailing(t *testing.T) {
	g := Gate{Level: 2, Name: "unit", Command: "exit 3", Timeout: 5 * time.Second}
	out := runGate(context.Background(), t.TempDir(), g, time.Second)

	assert.False(t, out.Passed)
	assert.Equal(t, 3, out.ExitCode)
}

func TestRunGateCapturesOutput(t *testing.T) {
	g := Gate{Level: 2, Name: "unit", Command: "echo stdout-line; echo stderr-line >&2; false", Timeout: 5 * time.Second}
	out := runGate(context.Background(), t.TempDir(), g, time.Second)

	assert.False(t, out.Passed)
	assert.Contains(t, out.Output, "stdout-line")
	assert.Contains(t, out.Output, "stderr-line")
}

func TestRunGateManualWithoutCommand(t *testing.T) {
	auto := Gate{Level: 4, Name: "manual", Command: ""}
	out := runGate(context.Background(), t.TempDir(), auto, time.Second)
	assert.True(t, out.Passed)
	assert.False(t, out.Manual)

	gated := Gate{Level: 4, Name: "manual", Command: "", RequireManual: true}
	out = runGate(context.Background(), t.TempDir(), gated, time.Second)
	assert.False(t, out.Passed)
	assert.True(t, out.Manual)
}

func TestRunGateTimeout(t *testing.T) {
	g := Gate{Level: 3, Name: "integration", Command: "sleep 30", Timeout: 100 * time.Millisecond}

	start := time.Now()
	out := runGate(context.Background(), t.TempDir(), g, 100*time.Millisecond)

	assert.False(t, out.Passed)
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestRunGateCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	g := Gate{Level: 3, Name: "integration", Command: "sleep 30", Timeout: time.Minute}
	start := time.Now()
	out := runGate(ctx, t.TempDir(), g, 100*time.Millisecond)

	assert.False(t, out.Passed)
	assert.Less(t, time.Since(start), 10*time.Second)
}
