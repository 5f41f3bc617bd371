// Package cli implements the stagehand command-line interface.
package cli

import (
	"github.com/spf13/cobra"
)

// exitCode is set by subcommands that need a specific process exit
// code (the paused sentinel in particular) rather than plain success or
// failure.
var exitCode int

var rootCmd = &cobra.Command{
	Use:   "stagehand",
	Short: "Dependency-aware task protocol runner",
	Long: `stagehand runs a configured task graph phase by phase: it provisions
a git worktree per task, schedules tasks as their dependencies
complete, delegates interactive tasks to a pseudo-terminal session
runner, and pairs every phase with a stall watchdog.

Quick start:
  stagehand run                  Run the full protocol with monitoring
  stagehand orchestrate          Run a single phase directly
  stagehand plan                 Show selection and scheduling waves`,
	SilenceUsage: true,
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		return 1
	}
	return exitCode
}

func init() {
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newOrchestrateCmd())
	rootCmd.AddCommand(newPlanCmd())
	rootCmd.AddCommand(newVersionCmd())
}
