package config

// Default file locations relative to the project root.
const (
	DefaultLogsDir    = "framework/logs"
	DefaultConfigPath = "framework/orchestrator/orchestrator.json"
	EventLogFileName  = "framework-run.jsonl"
	RunLockFileName   = "framework-run.lock"
	StatusLogFileName = "protocol-status.log"
	AlertsLogFileName = "protocol-alerts.log"
	SchedulerPIDName  = "orchestrator.pid"
	SummaryDirName    = "framework/docs"
	SummaryLatestName = "orchestrator-run-summary.md"
	VersionFilePath   = "framework/VERSION"
)

// applyDefaults fills zero-valued top-level fields.
func applyDefaults(cfg *Config) {
	if cfg.ProjectRoot == "" {
		cfg.ProjectRoot = "."
	}
	if cfg.LogsDir == "" {
		cfg.LogsDir = DefaultLogsDir
	}
	if cfg.Runners == nil {
		cfg.Runners = map[string]RunnerConfig{}
	}
	for i := range cfg.Tasks {
		task := &cfg.Tasks[i]
		if task.Phase == "" {
			task.Phase = "main"
		}
		if task.Runner == "" {
			task.Runner = "codex"
		}
		if task.Branch == "" {
			task.Branch = "task/{task}"
		}
	}
}
