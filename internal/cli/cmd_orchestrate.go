package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/stagehand-dev/stagehand/internal/config"
	"github.com/stagehand-dev/stagehand/internal/events"
	"github.com/stagehand-dev/stagehand/internal/graph"
	"github.com/stagehand-dev/stagehand/internal/preflight"
	"github.com/stagehand-dev/stagehand/internal/report"
	"github.com/stagehand-dev/stagehand/internal/runlock"
	"github.com/stagehand-dev/stagehand/internal/schedule"
)

// EnvRunnerNoop replaces every runner command with a no-op for
// rehearsal runs.
const EnvRunnerNoop = "STAGEHAND_RUNNER_NOOP"

type orchestrateFlags struct {
	configPath    string
	phase         string
	dryRun        bool
	includeManual bool
}

func newOrchestrateCmd() *cobra.Command {
	flags := orchestrateFlags{}
	cmd := &cobra.Command{
		Use:   "orchestrate",
		Short: "Run one phase of the task graph",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			code, err := orchestrate(ctx, flags)
			exitCode = code
			return err
		},
	}
	cmd.Flags().StringVar(&flags.configPath, "config", config.DefaultConfigPath, "orchestrator configuration file")
	cmd.Flags().StringVar(&flags.phase, "phase", "main", "phase to run (discovery|main|post|legacy)")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "resolve and log tasks without provisioning or spawning")
	cmd.Flags().BoolVar(&flags.includeManual, "include-manual", false, "include manually gated tasks")
	return cmd
}

// newRunID builds a collision-resistant run identifier: a local
// timestamp plus a random suffix.
func newRunID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return now.Format("20060102-150405") + "-" + suffix
}

// loadSelection loads the configuration and produces the task set for
// one phase. Shared by orchestrate and plan.
func loadSelection(configPath, phase string, includeManual bool) (*config.Config, []graph.Task, error) {
	if !graph.ValidPhase(phase) {
		return nil, nil, fmt.Errorf("unknown phase %q", phase)
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	if config.EnvTruthy(os.Getenv(EnvRunnerNoop)) {
		cfg.ApplyRunnerNoop()
	}
	tasks, err := graph.Normalize(cfg.Tasks)
	if err != nil {
		return nil, nil, err
	}
	selected, err := graph.Select(tasks, graph.Phase(phase), includeManual)
	if err != nil {
		return nil, nil, err
	}
	return cfg, selected, nil
}

func orchestrate(ctx context.Context, flags orchestrateFlags) (int, error) {
	cfg, selected, err := loadSelection(flags.configPath, flags.phase, flags.includeManual)
	if err != nil {
		return schedule.ExitFailure, err
	}
	phase := graph.Phase(flags.phase)
	if len(selected) == 0 {
		// An empty phase is a configuration mistake, not a clean run.
		return schedule.ExitFailure, fmt.Errorf("no tasks selected for phase %s", phase)
	}

	logsDir := config.ResolvePath(cfg.LogsDir, cfg.ProjectRoot)
	summaryDir := config.ResolvePath(config.SummaryDirName, cfg.ProjectRoot)
	runID := newRunID(time.Now())
	version := frameworkVersion(cfg.ProjectRoot)

	if err := preflight.Check(preflight.Input{
		ProjectRoot: cfg.ProjectRoot,
		LogsDir:     logsDir,
		Runners:     cfg.Runners,
		Tasks:       selected,
		RunID:       runID,
		Phase:       phase,
	}); err != nil {
		return schedule.ExitFailure, err
	}

	lockPath := filepath.Join(logsDir, config.RunLockFileName)
	var lock *runlock.Lock
	switch phase {
	case graph.PhaseMain:
		if !flags.dryRun {
			lock, err = runlock.Acquire(lockPath, runlock.Info{
				RunID:     runID,
				Phase:     string(phase),
				StartedAt: events.Stamp(time.Now()),
				PID:       os.Getpid(),
			})
			if err != nil {
				return schedule.ExitFailure, err
			}
		}
	case graph.PhasePost, graph.PhaseLegacy:
		if err := runlock.CheckForeign(lockPath, runID); err != nil {
			return schedule.ExitFailure, err
		}
	}

	writer := events.NewWriter(filepath.Join(logsDir, config.EventLogFileName))

	runner := schedule.New(schedule.Options{
		ProjectRoot: cfg.ProjectRoot,
		LogsDir:     logsDir,
		SummaryDir:  summaryDir,
		ConfigPath:  flags.configPath,
		RunID:       runID,
		Phase:       phase,
		Version:     version,
		Runners:     cfg.Runners,
		DryRun:      flags.dryRun,
	}, selected, writer, lock)

	code, runErr := runner.Run(ctx)

	if !flags.dryRun {
		if msg := report.Publish(cfg.Reporting, string(phase), runID, report.Options{}); msg != "" {
			fmt.Printf("[REPORT] %s\n", msg)
			if appendErr := writer.Append(events.Record{
				Event: events.KindReportPublishError,
				RunID: runID,
				Phase: string(phase),
				Error: msg,
			}); appendErr != nil {
				fmt.Printf("[ERROR] appending report event: %v\n", appendErr)
			}
		}
	}

	if runErr != nil {
		return code, runErr
	}
	return code, nil
}
