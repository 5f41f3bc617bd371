package config

// RunnerConfig defines a named command template used to launch a task's
// process. The command must contain a {prompt} placeholder which is
// replaced with the task's prompt file path at spawn time.
type RunnerConfig struct {
	Command string `json:"command" yaml:"command"`
	// SupportsSessionAttach marks runners whose process can be driven
	// through the interactive session runner. This is an explicit
	// capability flag, never inferred from the command text.
	SupportsSessionAttach bool `json:"supports_session_attach,omitempty" yaml:"supports_session_attach,omitempty"`
}

// RawTask is a task definition exactly as it appears in configuration,
// before normalization. Fields that are templates may contain the
// {run_id}, {phase}, and {task} placeholders.
type RawTask struct {
	Name        string   `json:"name" yaml:"name"`
	DependsOn   []string `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
	Phase       string   `json:"phase,omitempty" yaml:"phase,omitempty"`
	Manual      *bool    `json:"manual,omitempty" yaml:"manual,omitempty"`
	Interactive bool     `json:"interactive,omitempty" yaml:"interactive,omitempty"`
	Runner      string   `json:"runner,omitempty" yaml:"runner,omitempty"`
	Worktree    string   `json:"worktree,omitempty" yaml:"worktree,omitempty"`
	Branch      string   `json:"branch,omitempty" yaml:"branch,omitempty"`
	Prompt      string   `json:"prompt,omitempty" yaml:"prompt,omitempty"`
	Log         string   `json:"log,omitempty" yaml:"log,omitempty"`
	PauseMarker string   `json:"pause_marker,omitempty" yaml:"pause_marker,omitempty"`
}

// ReportingConfig controls the post-run report publish step.
type ReportingConfig struct {
	Enabled          bool     `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Phases           []string `json:"phases,omitempty" yaml:"phases,omitempty"`
	Repo             string   `json:"repo,omitempty" yaml:"repo,omitempty"`
	Mode             string   `json:"mode,omitempty" yaml:"mode,omitempty"`
	HostID           string   `json:"host_id,omitempty" yaml:"host_id,omitempty"`
	IncludeMigration *bool    `json:"include_migration,omitempty" yaml:"include_migration,omitempty"`
	IncludeReview    bool     `json:"include_review,omitempty" yaml:"include_review,omitempty"`
	IncludeTaskLogs  bool     `json:"include_task_logs,omitempty" yaml:"include_task_logs,omitempty"`
}

// Config is the top-level orchestrator configuration.
type Config struct {
	ProjectRoot string                  `json:"project_root,omitempty" yaml:"project_root,omitempty"`
	LogsDir     string                  `json:"logs_dir,omitempty" yaml:"logs_dir,omitempty"`
	Runners     map[string]RunnerConfig `json:"runners,omitempty" yaml:"runners,omitempty"`
	Reporting   *ReportingConfig        `json:"reporting,omitempty" yaml:"reporting,omitempty"`
	Tasks       []RawTask               `json:"tasks,omitempty" yaml:"tasks,omitempty"`
}
