// stagehand-watch tails a scheduler's event log and alerts on stalls.
// Launched next to every orchestrate invocation by the run coordinator.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/stagehand-dev/stagehand/internal/config"
	"github.com/stagehand-dev/stagehand/internal/watch"
)

func main() {
	var (
		pid            int
		logsDir        string
		stallTimeout   int
		pollInterval   float64
		statusInterval int
		killOnStall    bool
	)

	cmd := &cobra.Command{
		Use:   "stagehand-watch",
		Short: "Watch a protocol run and report progress and stalls",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			status := time.Duration(statusInterval) * time.Second
			if statusInterval <= 0 {
				status = -1
			}
			watcher := watch.New(watch.Options{
				PID:            pid,
				EventLog:       filepath.Join(logsDir, config.EventLogFileName),
				StatusLog:      filepath.Join(logsDir, config.StatusLogFileName),
				AlertsLog:      filepath.Join(logsDir, config.AlertsLogFileName),
				StallTimeout:   time.Duration(stallTimeout) * time.Second,
				PollInterval:   time.Duration(pollInterval * float64(time.Second)),
				StatusInterval: status,
				KillOnStall:    killOnStall,
			})
			return watcher.Run(ctx)
		},
	}

	cmd.Flags().IntVar(&pid, "pid", 0, "orchestrator pid to watch (required)")
	cmd.Flags().StringVar(&logsDir, "logs-dir", config.DefaultLogsDir, "logs directory")
	cmd.Flags().IntVar(&stallTimeout, "stall-timeout", int(watch.DefaultStallTimeout/time.Second), "seconds of frozen log mtime before a stall alert (0 disables)")
	cmd.Flags().Float64Var(&pollInterval, "poll-interval", 2, "seconds between polls")
	cmd.Flags().IntVar(&statusInterval, "status-interval", 10, "seconds between status lines (0 disables)")
	cmd.Flags().BoolVar(&killOnStall, "kill-on-stall", false, "terminate the orchestrator on stall")
	_ = cmd.MarkFlagRequired("pid")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "stagehand-watch: %v\n", err)
		os.Exit(1)
	}
}
