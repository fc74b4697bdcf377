package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/droverdev/drover/internal/backlog"
)

var validateCmd = &cobra.Command{
	Use:   "validate <tasks.json>",
	Short: "Schema-check a backlog file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading %s: %w", args[0], err)
		}
		b, err := backlog.Decode(data)
		if err != nil {
			return err
		}

		subtasks := len(b.Subtasks())
		fmt.Fprintf(cmd.OutOrStdout(), "Valid: %d phase(s), %d subtask(s)\n", len(b.Phases), subtasks)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
