package schedule

import (
	"time"

	"github.com/stagehand-dev/stagehand/internal/graph"
)

// Exit describes a reaped child process.
type Exit struct {
	Task     string
	ExitCode int
	// PauseMarkerPresent is set when the task's configured pause marker
	// exists after the child exited.
	PauseMarkerPresent bool
}

// Finish is a terminal transition produced by a tick.
type Finish struct {
	Task     string
	Status   Status // StatusCompleted or StatusPaused
	ExitCode int
}

// TickResult is everything a single transition decided. The loop turns
// Start entries into real processes and Finished entries into task_end
// events; the transition itself performs no I/O.
type TickResult struct {
	Start    []graph.Task
	Blocked  map[string][]string
	Finished []Finish
	Progress bool
}

// Tick advances the state machine by one scan:
//
//  1. pending tasks whose dependencies all completed with exit 0 start;
//  2. pending tasks with a blocked, failed, or paused dependency become
//     blocked, naming the offending dependencies;
//  3. reaped children become completed, or paused when the exit signals
//     an interactive pause.
//
// Tasks are scanned in input order, the scheduling tie-break. The
// returned result records whether any forward progress happened; the
// loop uses that together with the running set for deadlock detection.
func Tick(st *State, tasks []graph.Task, exits []Exit, now time.Time) TickResult {
	result := TickResult{Blocked: map[string][]string{}}

	byName := make(map[string]graph.Task, len(tasks))
	for _, task := range tasks {
		byName[task.Name] = task
	}

	// Reap first so dependents can start in a later tick with a fully
	// recorded view of their dependencies.
	for _, exit := range exits {
		rec, ok := st.Records[exit.Task]
		if !ok || rec.Status != StatusRunning {
			continue
		}
		status := StatusCompleted
		code := exit.ExitCode
		task := byName[exit.Task]
		if task.Interactive && (exit.PauseMarkerPresent || (code == ExitPaused && task.PauseMarker != "")) {
			status = StatusPaused
			code = ExitPaused
		}
		rec.Status = status
		rec.ExitCode = code
		result.Finished = append(result.Finished, Finish{Task: exit.Task, Status: status, ExitCode: code})
		result.Progress = true
	}

	for _, name := range st.Order {
		rec := st.Records[name]
		if rec.Status != StatusPending {
			continue
		}
		task := byName[name]

		var failedDeps []string
		ready := true
		for _, dep := range task.DependsOn {
			depRec, ok := st.Records[dep]
			if !ok {
				// Dependency outside the selected set; Select rejects this,
				// so treat it as a blocking cause rather than panic.
				failedDeps = append(failedDeps, dep)
				continue
			}
			switch depRec.Status {
			case StatusBlocked, StatusPaused:
				failedDeps = append(failedDeps, dep)
			case StatusCompleted:
				if depRec.ExitCode != 0 {
					failedDeps = append(failedDeps, dep)
				}
			default:
				ready = false
			}
		}

		if len(failedDeps) > 0 {
			rec.Status = StatusBlocked
			rec.FailedDeps = failedDeps
			result.Blocked[name] = failedDeps
			result.Progress = true
			continue
		}
		if !ready {
			continue
		}

		rec.Status = StatusRunning
		rec.StartedAt = now
		result.Start = append(result.Start, task)
		result.Progress = true
	}

	return result
}
