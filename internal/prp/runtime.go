package prp

import (
	"errors"
	"time"

	"github.com/droverdev/drover/internal/agent"
	"github.com/droverdev/drover/internal/config"
	"github.com/droverdev/drover/internal/mcp"
	"github.com/droverdev/drover/internal/session"
)

// Subtask-scoped execution errors. All are absorbed by the orchestrator as a
// Failed status; none terminate the run.
var (
	ErrBlueprintGeneration = errors.New("blueprint generation failed")
	ErrCoderExecution      = errors.New("coder execution failed")
	ErrCoderIssue          = errors.New("coder reported an issue requiring inspection")
	ErrGateFailure         = errors.New("validation gate failed")
	ErrManualGate          = errors.New("manual gate requires sign-off")
)

// Runtime drives the per-subtask lifecycle against one session.
type Runtime struct {
	agents  agent.Roster
	mgr     *session.Manager
	tools   *mcp.Registry
	workDir string

	gates       []Gate
	cacheTTL    time.Duration
	retry       agent.RetryConfig
	fixAttempts int
	grace       time.Duration
	retention   int

	models      config.ModelsConfig
	maxTokens   int64
	temperature float64

	now func() time.Time
}

// NewRuntime builds a Runtime from configuration. The session manager handle
// is borrowed; the Runtime never writes tasks.json itself.
func NewRuntime(cfg *config.Config, agents agent.Roster, mgr *session.Manager, tools *mcp.Registry, workDir string) *Runtime {
	gates := make([]Gate, 0, len(cfg.Gates))
	for _, g := range cfg.Gates {
		gates = append(gates, Gate{
			Level:         g.Level,
			Name:          g.Name,
			Command:       g.Command,
			Timeout:       g.ParseTimeout(),
			RequireManual: g.RequireManual,
		})
	}

	return &Runtime{
		agents:  agents,
		mgr:     mgr,
		tools:   tools,
		workDir: workDir,
		gates:   gates,
		cacheTTL: cfg.Cache.ParseTTL(),
		retry: agent.RetryConfig{
			MaxAttempts: cfg.Agent.MaxAttempts,
			BaseDelay:   cfg.Agent.ParseBaseDelay(),
			Jitter:      0.2,
		},
		fixAttempts: cfg.Run.FixAttempts,
		grace:       cfg.Run.ParseGracePeriod(),
		retention:   cfg.Run.CheckpointRetention,
		models:      cfg.Models,
		maxTokens:   cfg.Agent.MaxTokens,
		temperature: cfg.Agent.Temperature,
		now:         time.Now,
	}
}

// checkpointer returns the per-stage snapshot writer for a subtask.
func (r *Runtime) checkpointer(subtaskID string) *Checkpointer {
	return NewCheckpointer(r.mgr.Session().CheckpointsPath(subtaskID), subtaskID, r.retention)
}
