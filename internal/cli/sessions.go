package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/droverdev/drover/internal/backlog"
	"github.com/droverdev/drover/internal/session"
	"github.com/droverdev/drover/internal/store"
)

var sessionsPlanRoot string

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List sessions under a plan root",
	RunE: func(cmd *cobra.Command, args []string) error {
		return listSessions(cmd)
	},
}

func init() {
	sessionsCmd.Flags().StringVar(&sessionsPlanRoot, "plan-root", "plans", "Directory holding session state")
	rootCmd.AddCommand(sessionsCmd)
}

func listSessions(cmd *cobra.Command) error {
	sessions, err := session.ListSessions(sessionsPlanRoot)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No sessions found.")
		return nil
	}

	headerStyle := lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle := lipgloss.NewStyle().Padding(0, 1)

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("238"))).
		Headers("Session", "Seq", "Parent", "Progress").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})

	for _, s := range sessions {
		t.Row(s.ID, fmt.Sprintf("%d", s.Sequence), sessionParent(s), sessionProgress(s))
	}

	fmt.Fprintln(cmd.OutOrStdout(), t.Render())
	return nil
}

// sessionParent reads parent_session.txt when the session is a delta.
func sessionParent(s *session.Session) string {
	data, err := os.ReadFile(s.ParentPath())
	if err != nil {
		return "-"
	}
	return strings.TrimSpace(string(data))
}

// sessionProgress counts completed subtasks out of the total.
func sessionProgress(s *session.Session) string {
	if !store.Exists(s.TasksPath()) {
		return "no backlog"
	}
	data, err := os.ReadFile(s.TasksPath())
	if err != nil {
		return "unreadable"
	}
	b, err := backlog.Decode(data)
	if err != nil {
		return "invalid"
	}

	total, complete := 0, 0
	for _, sub := range b.Subtasks() {
		total++
		if sub.Status == backlog.StatusComplete {
			complete++
		}
	}
	return fmt.Sprintf("%d/%d", complete, total)
}
