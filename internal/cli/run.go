package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/droverdev/drover/internal/agent"
	"github.com/droverdev/drover/internal/backlog"
	"github.com/droverdev/drover/internal/config"
	"github.com/droverdev/drover/internal/mcp"
	"github.com/droverdev/drover/internal/orchestrator"
	"github.com/droverdev/drover/internal/prp"
	"github.com/droverdev/drover/internal/session"
	"github.com/droverdev/drover/internal/store"
)

// ErrRunFailed marks a run that finished with failed or blocked subtasks.
// The process exits 1.
var ErrRunFailed = errors.New("run finished with failures")

var (
	runPRD         string
	runPlanRoot    string
	runScope       string
	runWorkDir     string
	runParallelism int
	runFailFast    bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute the backlog for a PRD",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBacklog(cmd.Context())
	},
}

func init() {
	runCmd.Flags().StringVar(&runPRD, "prd", "", "Path to the PRD markdown file")
	runCmd.Flags().StringVar(&runPlanRoot, "plan-root", "plans", "Directory holding session state")
	runCmd.Flags().StringVar(&runScope, "scope", "", "Backlog scope to execute (e.g. P1.M2); defaults to the first phase")
	runCmd.Flags().StringVar(&runWorkDir, "work-dir", ".", "Working tree the agents and gates operate on")
	runCmd.Flags().IntVar(&runParallelism, "parallelism", 0, "Max concurrent independent subtasks (overrides config)")
	runCmd.Flags().BoolVar(&runFailFast, "fail-fast", false, "Stop dispatching after the first failed subtask")
	_ = runCmd.MarkFlagRequired("prd")
	rootCmd.AddCommand(runCmd)
}

func runBacklog(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(runPlanRoot)
	if err != nil {
		return err
	}
	if runParallelism > 0 {
		cfg.Run.Parallelism = runParallelism
	}
	if runFailFast {
		cfg.Run.FailFast = true
	}
	if cfg.Agent.APIKey == "" {
		return fmt.Errorf("%w: no API key configured (set ANTHROPIC_API_KEY)", session.ErrPlanRoot)
	}

	agents := newRoster(cfg)

	mgr, err := openSession(ctx, cfg, agents)
	if err != nil {
		return err
	}
	defer func() {
		if err := mgr.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "closing session: %v\n", err)
		}
	}()

	if !mgr.HasBacklog() {
		prd, err := os.ReadFile(mgr.Session().PRDSnapshotPath())
		if err != nil {
			return fmt.Errorf("%w: %v", session.ErrSessionLoad, err)
		}
		b, err := orchestrator.Decompose(ctx, cfg, agents.Architect, string(prd))
		if err != nil {
			return err
		}
		if err := mgr.SaveBacklog(b); err != nil {
			return err
		}
	}

	tools := mcp.NewRegistry()
	if err := mcp.RegisterGitTools(tools, runWorkDir); err != nil {
		return err
	}
	if err := mcp.RegisterShellTools(tools, runWorkDir); err != nil {
		return err
	}

	runtime := prp.NewRuntime(cfg, agents, mgr, tools, runWorkDir)
	orch, err := orchestrator.New(cfg, mgr, runtime, agents, runScope)
	if err != nil {
		return err
	}

	summary, runErr := orch.Run(ctx)
	if runErr == nil && ctx.Err() == nil {
		if fixed, err := orch.ReviewAndFix(ctx, summary); err == nil && fixed > 0 {
			fmt.Fprintf(os.Stderr, "review fixed %d issue(s)\n", fixed)
		}
	}

	printSummary(summary)

	if runErr != nil {
		return runErr
	}
	if summary.Failed > 0 || summary.Blocked > 0 {
		return fmt.Errorf("%w: %d failed, %d blocked", ErrRunFailed, summary.Failed, summary.Blocked)
	}
	return nil
}

// openSession binds the run to a session: the matching session when the PRD
// hash hits, a delta session carrying completed work forward when the PRD
// changed against an existing lineage, or a brand-new session otherwise.
func openSession(ctx context.Context, cfg *config.Config, agents agent.Roster) (*session.Manager, error) {
	prd, err := os.ReadFile(runPRD)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", session.ErrPRDRead, runPRD, err)
	}

	parent := deltaParent(prd)
	if parent == nil {
		return session.Initialize(runPRD, runPlanRoot)
	}

	// Bind to the parent through its own snapshot so no new session dir is
	// created before the delta is computed.
	mgr, err := session.Initialize(parent.PRDSnapshotPath(), runPlanRoot)
	if err != nil {
		return nil, err
	}
	if !mgr.HasSessionChanged(prd) {
		return mgr, nil
	}

	oldPRD, err := os.ReadFile(parent.PRDSnapshotPath())
	if err != nil {
		_ = mgr.Close()
		return nil, fmt.Errorf("%w: %v", session.ErrSessionLoad, err)
	}

	b, err := orchestrator.Decompose(ctx, cfg, agents.Architect, string(prd))
	if err != nil {
		_ = mgr.Close()
		return nil, err
	}

	delta := mgr.ComputeDelta(oldPRD, prd, completedSubtasks(mgr))
	delta.Backlog = b
	s, err := mgr.CreateDeltaSession(parent.ID, prd, delta)
	if err != nil {
		_ = mgr.Close()
		return nil, err
	}
	fmt.Fprintf(os.Stderr, "PRD changed: created delta session %s from %s\n", s.ID, parent.ID)
	return mgr, nil
}

// deltaParent picks the session to fork when the PRD hash misses every
// existing session. Only sessions that already carry a backlog qualify;
// returns nil when the hash matches or no lineage exists.
func deltaParent(prd []byte) *session.Session {
	sessions, err := session.ListSessions(runPlanRoot)
	if err != nil || len(sessions) == 0 {
		return nil
	}

	hash := session.HashPRD(prd)
	var latest *session.Session
	for _, s := range sessions {
		if strings.HasPrefix(hash, s.PRDHash) {
			return nil
		}
		if store.Exists(s.TasksPath()) {
			latest = s
		}
	}
	return latest
}

// completedSubtasks lists the subtask ids the bound session finished.
func completedSubtasks(mgr *session.Manager) []string {
	var ids []string
	if b := mgr.Backlog(); b != nil {
		for _, sub := range b.Subtasks() {
			if sub.Status == backlog.StatusComplete {
				ids = append(ids, sub.ID)
			}
		}
	}
	return ids
}

// newRoster builds one Claude-backed agent per role.
func newRoster(cfg *config.Config) agent.Roster {
	retry := agent.RetryConfig{
		MaxAttempts: cfg.Agent.MaxAttempts,
		BaseDelay:   cfg.Agent.ParseBaseDelay(),
		Jitter:      0.2,
	}
	opts := []agent.ClaudeOption{
		agent.WithTimeout(cfg.Agent.ParseTimeout()),
		agent.WithRetry(retry),
	}
	return agent.Roster{
		Architect:  agent.NewClaudeAgent(cfg.Agent.APIKey, cfg.Models.Architect, opts...),
		Researcher: agent.NewClaudeAgent(cfg.Agent.APIKey, cfg.Models.Researcher, opts...),
		Coder:      agent.NewClaudeAgent(cfg.Agent.APIKey, cfg.Models.Coder, opts...),
		QA:         agent.NewClaudeAgent(cfg.Agent.APIKey, cfg.Models.QA, opts...),
	}
}

// printSummary renders the final run report to stderr.
func printSummary(s orchestrator.Summary) {
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	okStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	failStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("9"))

	fmt.Fprintf(os.Stderr, "\n%s\n", headerStyle.Render("Run summary"))
	fmt.Fprintf(os.Stderr, "  %s\n", okStyle.Render(fmt.Sprintf("✓ %d completed", s.Completed)))
	if s.Failed > 0 || s.Blocked > 0 {
		fmt.Fprintf(os.Stderr, "  %s\n", failStyle.Render(fmt.Sprintf("✗ %d failed, %d blocked", s.Failed, s.Blocked)))
	}
	fmt.Fprintf(os.Stderr, "  %d item(s) in scope, %dms\n", s.TotalItems, s.DurationMs)
	fmt.Fprintf(os.Stderr, "  session: %s\n", s.SessionPath)
}
