// Package schedule implements the dependency-aware scheduler loop: a
// pure per-tick transition over an explicit state object, wrapped by an
// effectful loop that provisions workspaces, spawns child processes,
// and reaps them with non-blocking status checks.
package schedule

import (
	"time"

	"github.com/stagehand-dev/stagehand/internal/graph"
)

// Process exit codes for the run as a whole.
const (
	ExitSuccess = 0
	ExitFailure = 1
	// ExitPaused is the sentinel for "stopped for resume": distinct from
	// success and failure so downstream tooling can tell an interactive
	// pause apart from a crash.
	ExitPaused = 2
)

// Status is a task's scheduler-visible state for the current run.
type Status int

const (
	StatusPending Status = iota
	StatusRunning
	StatusCompleted
	StatusBlocked
	StatusPaused
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusCompleted:
		return "completed"
	case StatusBlocked:
		return "blocked"
	case StatusPaused:
		return "paused"
	}
	return "unknown"
}

// Record is the transient execution record for one task. Records are
// created when the scheduler first considers the task and mutated only
// by the tick transition.
type Record struct {
	Status     Status
	ExitCode   int
	FailedDeps []string
	StartedAt  time.Time
}

// State is the scheduler's full view of a run. It is owned by the loop
// and passed through the tick function; nothing else mutates it.
type State struct {
	Order   []string
	Records map[string]*Record
}

// NewState initializes a pending record per task, preserving input
// order as the scan order.
func NewState(tasks []graph.Task) *State {
	st := &State{Records: make(map[string]*Record, len(tasks))}
	for _, task := range tasks {
		st.Order = append(st.Order, task.Name)
		st.Records[task.Name] = &Record{Status: StatusPending}
	}
	return st
}

// Running lists names of currently running tasks in scan order.
func (st *State) Running() []string {
	var names []string
	for _, name := range st.Order {
		if st.Records[name].Status == StatusRunning {
			names = append(names, name)
		}
	}
	return names
}

// Done reports whether every task has reached a terminal status.
func (st *State) Done() bool {
	for _, rec := range st.Records {
		switch rec.Status {
		case StatusPending, StatusRunning:
			return false
		}
	}
	return true
}

// ExitCode computes the run's aggregate exit code: success only when
// every task completed cleanly, the paused sentinel when one or more
// tasks paused, failure otherwise. Pause wins over failure: a paused
// interview blocks its dependents for this run, and the operator must
// resume before the remaining statuses mean anything. Downstream
// tooling keys the resume flow off this code.
func (st *State) ExitCode() int {
	paused := false
	failed := false
	for _, rec := range st.Records {
		switch rec.Status {
		case StatusPaused:
			paused = true
		case StatusBlocked:
			failed = true
		case StatusCompleted:
			if rec.ExitCode != 0 {
				failed = true
			}
		default:
			failed = true
		}
	}
	if paused {
		return ExitPaused
	}
	if failed {
		return ExitFailure
	}
	return ExitSuccess
}
