// Package cli wires the cobra command tree: run, sessions, validate, delta.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/droverdev/drover/internal/logging"
)

var (
	verbose bool
	rootCmd = &cobra.Command{
		Use:   "drover",
		Short: "Autonomous development orchestrator",
		Long:  `Drover turns a PRD into a task backlog and drives LLM agents through it: blueprint generation, implementation, progressive validation gates, and commits.`,
	}
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose/debug output")
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		logging.Setup(verbose)
	}
}

func Execute() error {
	return rootCmd.Execute()
}
