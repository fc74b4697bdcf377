package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/droverdev/drover/internal/backlog"
	"github.com/droverdev/drover/internal/session"
)

var (
	deltaPRD      string
	deltaPlanRoot string
	deltaSession  string
)

var deltaCmd = &cobra.Command{
	Use:   "delta",
	Short: "Preview how a changed PRD maps onto an existing session's backlog",
	RunE: func(cmd *cobra.Command, args []string) error {
		return previewDelta(cmd)
	},
}

func init() {
	deltaCmd.Flags().StringVar(&deltaPRD, "prd", "", "Path to the changed PRD")
	deltaCmd.Flags().StringVar(&deltaPlanRoot, "plan-root", "plans", "Directory holding session state")
	deltaCmd.Flags().StringVar(&deltaSession, "session", "", "Session to diff against (defaults to the latest)")
	_ = deltaCmd.MarkFlagRequired("prd")
	rootCmd.AddCommand(deltaCmd)
}

func previewDelta(cmd *cobra.Command) error {
	newPRD, err := os.ReadFile(deltaPRD)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", session.ErrPRDRead, deltaPRD, err)
	}

	sessions, err := session.ListSessions(deltaPlanRoot)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		return fmt.Errorf("%w: no sessions under %s", session.ErrSessionLoad, deltaPlanRoot)
	}

	target := sessions[len(sessions)-1]
	if deltaSession != "" {
		target = nil
		for _, s := range sessions {
			if s.ID == deltaSession {
				target = s
				break
			}
		}
		if target == nil {
			return fmt.Errorf("%w: session %q", session.ErrSessionLoad, deltaSession)
		}
	}

	oldPRD, err := os.ReadFile(target.PRDSnapshotPath())
	if err != nil {
		return fmt.Errorf("%w: %v", session.ErrSessionLoad, err)
	}

	// Opening the manager against the snapshot binds it to the target session
	// without creating a new one.
	mgr, err := session.Initialize(target.PRDSnapshotPath(), deltaPlanRoot)
	if err != nil {
		return err
	}
	defer func() { _ = mgr.Close() }()

	var completed []string
	if b := mgr.Backlog(); b != nil {
		for _, sub := range b.Subtasks() {
			if sub.Status == backlog.StatusComplete {
				completed = append(completed, sub.ID)
			}
		}
	}

	delta := mgr.ComputeDelta(oldPRD, newPRD, completed)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Delta against session %s:\n", target.ID)
	if delta.Instructions == "" {
		fmt.Fprintln(out, "  No PRD section changes detected.")
		return nil
	}
	fmt.Fprint(out, delta.Instructions)
	if len(delta.Modified) > 0 {
		fmt.Fprintf(out, "\nBacklog items to redo: %v\n", delta.Modified)
	}
	if len(delta.Removed) > 0 {
		fmt.Fprintf(out, "Backlog items to drop: %v\n", delta.Removed)
	}
	return nil
}
