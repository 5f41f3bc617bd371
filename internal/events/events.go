// Package events provides the append-only JSONL run event log shared
// between the scheduler and the stall watchdog. Records are one JSON
// object per line, appended and never rewritten; the watchdog tails the
// file by byte offset.
package events

import "time"

// Event kinds.
const (
	KindRunStart           = "run_start"
	KindTaskStart          = "task_start"
	KindTaskEnd            = "task_end"
	KindRunEnd             = "run_end"
	KindReportPublishError = "report_publish_error"
)

// Record is one event log entry. Kind-specific fields are pointers or
// omitted maps so each kind serializes only what it carries.
type Record struct {
	Event     string `json:"event"`
	RunID     string `json:"run_id"`
	Phase     string `json:"phase,omitempty"`
	Task      string `json:"task,omitempty"`
	Timestamp string `json:"timestamp"`

	// run_start
	ProjectRoot      string `json:"project_root,omitempty"`
	ConfigPath       string `json:"config,omitempty"`
	FrameworkVersion string `json:"framework_version,omitempty"`
	TasksTotal       int    `json:"tasks_total,omitempty"`

	// task_start
	Command     string `json:"command,omitempty"`
	Branch      string `json:"branch,omitempty"`
	Worktree    string `json:"worktree,omitempty"`
	Log         string `json:"log,omitempty"`
	Interactive bool   `json:"interactive,omitempty"`

	// task_end
	ExitCode *int `json:"exit_code,omitempty"`
	Paused   bool `json:"paused,omitempty"`

	// run_end
	DurationSec float64             `json:"duration_sec,omitempty"`
	Completed   map[string]int      `json:"completed,omitempty"`
	Blocked     map[string][]string `json:"blocked,omitempty"`
	PausedTasks []string            `json:"paused_tasks,omitempty"`

	// report_publish_error / run_end
	Error string `json:"error,omitempty"`
}

// Stamp formats a timestamp the way every record in the log does.
func Stamp(t time.Time) string {
	return t.Format("2006-01-02T15:04:05")
}
