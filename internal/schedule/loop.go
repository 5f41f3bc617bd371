package schedule

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/stagehand-dev/stagehand/internal/config"
	"github.com/stagehand-dev/stagehand/internal/events"
	"github.com/stagehand-dev/stagehand/internal/graph"
	"github.com/stagehand-dev/stagehand/internal/runlock"
	"github.com/stagehand-dev/stagehand/internal/summary"
	"github.com/stagehand-dev/stagehand/internal/tmpl"
	"github.com/stagehand-dev/stagehand/internal/worktree"
)

// ErrDeadlock is returned when a full tick makes no forward progress
// while nothing is running: an unsatisfiable or cyclic dependency set.
var ErrDeadlock = errors.New("no runnable tasks remaining")

// DefaultPauseCommand is the in-band sentinel an operator types to
// pause an interactive session.
const DefaultPauseCommand = "/pause"

// Options configures a scheduler run.
type Options struct {
	ProjectRoot string
	LogsDir     string
	SummaryDir  string
	ConfigPath  string
	RunID       string
	Phase       graph.Phase
	Version     string
	Runners     map[string]config.RunnerConfig
	DryRun      bool

	// SessionRunner is the path of the interactive session runner
	// executable. Defaults to "stagehand-session" resolved on PATH.
	SessionRunner string
	PauseCommand  string

	TickInterval     time.Duration
	ProgressInterval time.Duration

	Logf func(format string, args ...any)
}

// Runner drives one phase of a run to completion.
type Runner struct {
	opts   Options
	tasks  []graph.Task
	writer *events.Writer
	lock   *runlock.Lock
	trees  *worktree.Manager
	procs  *reaper
	state  *State
	start  time.Time
}

// New assembles a runner. The lock may be nil for phases that do not
// mutate shared state (and for dry runs).
func New(opts Options, tasks []graph.Task, writer *events.Writer, lock *runlock.Lock) *Runner {
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second
	}
	if opts.ProgressInterval <= 0 {
		opts.ProgressInterval = 10 * time.Second
	}
	if opts.PauseCommand == "" {
		opts.PauseCommand = DefaultPauseCommand
	}
	if opts.SessionRunner == "" {
		opts.SessionRunner = "stagehand-session"
	}
	if opts.Logf == nil {
		opts.Logf = log.Printf
	}
	return &Runner{
		opts:   opts,
		tasks:  tasks,
		writer: writer,
		lock:   lock,
		trees:  worktree.NewManager(opts.ProjectRoot),
		procs:  newReaper(),
		state:  NewState(tasks),
	}
}

// append writes one event record, logging failures: the event log is
// the watchdog's only input, so a write problem must surface somewhere,
// but it never aborts the run.
func (r *Runner) append(rec events.Record) {
	if err := r.writer.Append(rec); err != nil {
		r.opts.Logf("[ERROR] appending %s event: %v", rec.Event, err)
	}
}

// Run executes the scheduler loop and finalizes the run on every exit
// path: lock released, summary written, run_end appended. The returned
// exit code is the run's aggregate code (success, paused, or failure).
func (r *Runner) Run(ctx context.Context) (int, error) {
	r.start = time.Now()

	r.append(events.Record{
		Event:            events.KindRunStart,
		RunID:            r.opts.RunID,
		Phase:            string(r.opts.Phase),
		ProjectRoot:      r.opts.ProjectRoot,
		ConfigPath:       r.opts.ConfigPath,
		FrameworkVersion: r.opts.Version,
		TasksTotal:       len(r.tasks),
	})

	runErr := r.loop(ctx)
	if runErr != nil {
		r.opts.Logf("[ERROR] %v", runErr)
		r.procs.killAll()
	}

	r.finalize(runErr)

	code := r.state.ExitCode()
	if runErr != nil {
		code = ExitFailure
	}
	return code, runErr
}

func (r *Runner) loop(ctx context.Context) error {
	nextProgress := r.start.Add(r.opts.ProgressInterval)

	for !r.state.Done() {
		if err := ctx.Err(); err != nil {
			return err
		}

		exits := r.collectExits()
		res := Tick(r.state, r.tasks, exits, time.Now())

		for _, fin := range res.Finished {
			r.recordFinish(fin)
		}
		for name, deps := range res.Blocked {
			r.opts.Logf("[BLOCKED] %s <- %s", name, strings.Join(deps, ", "))
		}
		for _, task := range res.Start {
			if err := r.launch(task); err != nil {
				return err
			}
		}

		if now := time.Now(); now.After(nextProgress) {
			r.emitProgress(now)
			nextProgress = now.Add(r.opts.ProgressInterval)
		}

		if !res.Progress && r.procs.count() == 0 && !r.state.Done() {
			var pending []string
			for _, name := range r.state.Order {
				if r.state.Records[name].Status == StatusPending {
					pending = append(pending, name)
				}
			}
			return fmt.Errorf("%w; check for cyclic dependencies: %s", ErrDeadlock, strings.Join(pending, ", "))
		}

		if r.state.Done() {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.opts.TickInterval):
		}
	}

	return nil
}

// collectExits drains reaped children, checking each interactive task's
// pause marker before the tick classifies the exit.
func (r *Runner) collectExits() []Exit {
	var exits []Exit
	for _, msg := range r.procs.drain() {
		exit := Exit{Task: msg.task, ExitCode: msg.code}
		if task, ok := r.taskByName(msg.task); ok && task.Interactive && task.PauseMarker != "" {
			if marker, err := r.resolvePath(task, task.PauseMarker); err == nil {
				if _, statErr := os.Stat(marker); statErr == nil {
					exit.PauseMarkerPresent = true
				}
			}
		}
		exits = append(exits, exit)
	}
	return exits
}

// launch resolves a task's templates, records task_start, provisions
// its workspace, and spawns its process. The task_start event is
// appended before any spawn attempt so the log reflects attempted
// starts even if the spawn fails.
func (r *Runner) launch(task graph.Task) error {
	wtPath, err := r.resolvePath(task, task.Worktree)
	if err != nil {
		return err
	}
	branch, err := r.resolveTemplate(task, task.Branch)
	if err != nil {
		return err
	}
	logPath, err := r.taskLogPath(task)
	if err != nil {
		return err
	}
	promptPath := config.ResolvePath(task.Prompt, r.opts.ProjectRoot)
	if _, err := os.Stat(promptPath); err != nil {
		return fmt.Errorf("prompt file not found: %s", promptPath)
	}

	command, err := r.buildCommand(task, promptPath)
	if err != nil {
		return err
	}

	r.append(events.Record{
		Event:       events.KindTaskStart,
		RunID:       r.opts.RunID,
		Phase:       string(r.opts.Phase),
		Task:        task.Name,
		Command:     command,
		Branch:      branch,
		Worktree:    wtPath,
		Log:         logPath,
		Interactive: task.Interactive,
	})

	if r.opts.DryRun {
		r.opts.Logf("[DRY-RUN] %s in %s :: %s", task.Name, wtPath, command)
		rec := r.state.Records[task.Name]
		rec.Status = StatusCompleted
		rec.ExitCode = 0
		zero := 0
		r.append(events.Record{
			Event:    events.KindTaskEnd,
			RunID:    r.opts.RunID,
			Task:     task.Name,
			ExitCode: &zero,
		})
		return nil
	}

	if err := r.trees.Ensure(wtPath, branch); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return fmt.Errorf("create log directory for %s: %w", task.Name, err)
	}

	r.opts.Logf("[START] %s -> %s", task.Name, logPath)

	if task.Interactive {
		argv, err := r.sessionArgv(task, command, logPath, promptPath)
		if err != nil {
			return err
		}
		return r.procs.spawnForeground(task.Name, argv, wtPath)
	}
	return r.procs.spawnShell(task.Name, command, wtPath, logPath)
}

// sessionArgv builds the interactive session runner invocation,
// consuming any leftover pause marker so the session resumes instead of
// restarting.
func (r *Runner) sessionArgv(task graph.Task, command, transcript, promptPath string) ([]string, error) {
	argv := []string{r.opts.SessionRunner, "--transcript", transcript, "--pause-command", r.opts.PauseCommand}

	if task.PauseMarker != "" {
		marker, err := r.resolvePath(task, task.PauseMarker)
		if err != nil {
			return nil, err
		}
		argv = append(argv, "--pause-marker", marker)
		if _, err := os.Stat(marker); err == nil {
			// Marker left by a prior pause: resume by appending to the
			// transcript and clear the marker.
			if err := os.Remove(marker); err != nil {
				return nil, fmt.Errorf("consume pause marker %s: %w", marker, err)
			}
			argv = append(argv, "--append")
		}
	}

	if runner, ok := r.opts.Runners[task.Runner]; ok && runner.SupportsSessionAttach {
		argv = append(argv, "--prompt-file", promptPath, "--prompt-mode", "stdin")
	}

	argv = append(argv, "--", "sh", "-c", command)
	return argv, nil
}

func (r *Runner) recordFinish(fin Finish) {
	code := fin.ExitCode
	paused := fin.Status == StatusPaused
	if paused {
		r.opts.Logf("[PAUSED] %s", fin.Task)
	} else {
		r.opts.Logf("[DONE] %s exit=%d", fin.Task, code)
	}
	r.append(events.Record{
		Event:    events.KindTaskEnd,
		RunID:    r.opts.RunID,
		Task:     fin.Task,
		ExitCode: &code,
		Paused:   paused,
	})
}

// emitProgress writes the periodic progress line. While any running
// task is interactive the line goes to a side log: the operator's
// terminal belongs to the session and must not be corrupted.
func (r *Runner) emitProgress(now time.Time) {
	running := r.state.Running()
	if len(running) == 0 {
		return
	}
	elapsed := now.Sub(r.start).Round(time.Second)
	line := fmt.Sprintf("[PROGRESS] running=%s elapsed=%s", strings.Join(running, ","), elapsed)

	if r.anyRunningInteractive() {
		path := filepath.Join(r.opts.LogsDir, "orchestrator-progress.log")
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return
		}
		fmt.Fprintf(f, "%s %s\n", events.Stamp(now), line)
		_ = f.Close()
		return
	}
	r.opts.Logf("%s", line)
}

func (r *Runner) anyRunningInteractive() bool {
	for _, name := range r.state.Running() {
		if task, ok := r.taskByName(name); ok && task.Interactive {
			return true
		}
	}
	return false
}

// finalize releases the lock, writes the run summary, and appends the
// run_end event. Runs on every exit path, fatal errors included.
func (r *Runner) finalize(runErr error) {
	if r.lock != nil {
		if err := r.lock.Release(); err != nil {
			r.opts.Logf("[ERROR] releasing run lock: %v", err)
		}
	}

	finished := time.Now()
	data := summary.Data{
		RunID:    r.opts.RunID,
		Phase:    string(r.opts.Phase),
		Started:  r.start,
		Finished: finished,
		Version:  r.opts.Version,
	}
	if runErr != nil {
		data.Error = runErr.Error()
	}

	completed := map[string]int{}
	blocked := map[string][]string{}
	var pausedTasks []string
	for _, name := range r.state.Order {
		rec := r.state.Records[name]
		line := summary.TaskLine{Name: name}
		switch rec.Status {
		case StatusCompleted:
			completed[name] = rec.ExitCode
			if rec.ExitCode == 0 {
				line.Status = "OK"
			} else {
				line.Status = fmt.Sprintf("FAIL (%d)", rec.ExitCode)
			}
		case StatusBlocked:
			blocked[name] = rec.FailedDeps
			line.Status = fmt.Sprintf("BLOCKED (deps: %s)", strings.Join(rec.FailedDeps, ", "))
		case StatusPaused:
			pausedTasks = append(pausedTasks, name)
			line.Status = "PAUSED"
		default:
			line.Status = strings.ToUpper(rec.Status.String())
		}
		data.Tasks = append(data.Tasks, line)
	}

	if path, err := summary.Write(r.opts.SummaryDir, data); err != nil {
		r.opts.Logf("[ERROR] writing run summary: %v", err)
	} else {
		r.opts.Logf("Summary saved to %s", path)
	}

	rec := events.Record{
		Event:       events.KindRunEnd,
		RunID:       r.opts.RunID,
		Phase:       string(r.opts.Phase),
		DurationSec: finished.Sub(r.start).Seconds(),
		Completed:   completed,
		Blocked:     blocked,
		PausedTasks: pausedTasks,
	}
	if runErr != nil {
		rec.Error = runErr.Error()
	}
	r.append(rec)
}

func (r *Runner) taskByName(name string) (graph.Task, bool) {
	for _, task := range r.tasks {
		if task.Name == name {
			return task, true
		}
	}
	return graph.Task{}, false
}

func (r *Runner) vars(task graph.Task) tmpl.Vars {
	return tmpl.Vars{RunID: r.opts.RunID, Phase: string(r.opts.Phase), Task: task.Name}
}

func (r *Runner) resolveTemplate(task graph.Task, value string) (string, error) {
	return tmpl.Resolve(value, r.vars(task))
}

// resolvePath resolves a template then anchors it at the project root.
func (r *Runner) resolvePath(task graph.Task, value string) (string, error) {
	resolved, err := r.resolveTemplate(task, value)
	if err != nil {
		return "", err
	}
	return config.ResolvePath(resolved, r.opts.ProjectRoot), nil
}

// taskLogPath returns the task's log (or transcript) destination,
// defaulting to <logs>/<task>.log.
func (r *Runner) taskLogPath(task graph.Task) (string, error) {
	if task.Log == "" {
		return filepath.Join(r.opts.LogsDir, task.Name+".log"), nil
	}
	return r.resolvePath(task, task.Log)
}

// buildCommand substitutes the prompt path into the task's runner
// command template.
func (r *Runner) buildCommand(task graph.Task, promptPath string) (string, error) {
	runner, ok := r.opts.Runners[task.Runner]
	if !ok {
		return "", fmt.Errorf("runner %q not found in config", task.Runner)
	}
	if !strings.Contains(runner.Command, "{prompt}") {
		return "", fmt.Errorf("runner %q command is missing the {prompt} placeholder", task.Runner)
	}
	return strings.ReplaceAll(runner.Command, "{prompt}", promptPath), nil
}
