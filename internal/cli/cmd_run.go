package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/stagehand-dev/stagehand/internal/config"
	"github.com/stagehand-dev/stagehand/internal/graph"
	"github.com/stagehand-dev/stagehand/internal/protocol"
)

func newRunCmd() *cobra.Command {
	var configPath string
	var phase string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the full protocol with monitoring and resume",
		Long: `run selects the phases for this host (or honors --phase), skips
phases whose latest summary already succeeded, and runs each remaining
phase as an orchestrate/watchdog pair.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if phase != "" && !graph.ValidPhase(phase) {
				return fmt.Errorf("unknown phase %q", phase)
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			logsDir := config.ResolvePath(cfg.LogsDir, cfg.ProjectRoot)
			summaryDir := config.ResolvePath(config.SummaryDirName, cfg.ProjectRoot)

			// Phases re-exec this binary so the scheduler gets its own
			// pid for the watchdog to track.
			self, err := os.Executable()
			if err != nil {
				self = "stagehand"
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			coord := protocol.New(protocol.Options{
				ConfigPath:   configPath,
				Phase:        phase,
				ProjectRoot:  cfg.ProjectRoot,
				LogsDir:      logsDir,
				SummaryDir:   summaryDir,
				SchedulerBin: self,
			})
			exitCode = coord.Run(ctx)
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", config.DefaultConfigPath, "orchestrator configuration file")
	cmd.Flags().StringVar(&phase, "phase", "", "force a single phase instead of auto-detecting")
	return cmd
}
