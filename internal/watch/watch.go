// Package watch implements the stall watchdog: a sibling process that
// tails the scheduler's event log, tracks the scheduler pid and the
// active task's log mtime, and reports progress and stalls. It never
// participates in scheduling; its only write-back channel is an
// optional termination signal on stall.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/stagehand-dev/stagehand/internal/events"
)

// Defaults mirror the protocol's operational settings.
const (
	DefaultStallTimeout   = 15 * time.Minute
	DefaultPollInterval   = 2 * time.Second
	DefaultStatusInterval = 10 * time.Second
)

var (
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	alertStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	taskStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
)

// Options configures a Watcher.
type Options struct {
	PID            int
	EventLog       string
	StatusLog      string
	AlertsLog      string
	StallTimeout   time.Duration // <= 0 disables stall detection
	PollInterval   time.Duration
	StatusInterval time.Duration // <= 0 disables status lines
	KillOnStall    bool

	Now     func() time.Time
	Console func(format string, args ...any)
}

// view is the watcher's in-memory picture of the run, rebuilt purely
// from the append-only event log.
type view struct {
	runID      string
	phase      string
	startedAt  time.Time
	tasksTotal int
	status     map[string]string

	activeTask        string
	activeLog         string
	activeInteractive bool
}

// apply folds one event into the view and reports whether the run has
// ended.
func (v *view) apply(rec events.Record, now time.Time, console func(string, ...any)) bool {
	switch rec.Event {
	case events.KindRunStart:
		v.runID = rec.RunID
		v.phase = rec.Phase
		v.startedAt = now
		v.tasksTotal = rec.TasksTotal
		v.status = map[string]string{}
	case events.KindTaskStart:
		v.activeTask = rec.Task
		v.activeLog = rec.Log
		v.activeInteractive = rec.Interactive
		if rec.Task != "" {
			v.status[rec.Task] = "RUNNING"
		}
		console("%s start %s", taskStyle.Render("[TASK]"), rec.Task)
	case events.KindTaskEnd:
		code := 0
		if rec.ExitCode != nil {
			code = *rec.ExitCode
		}
		console("%s done %s exit=%d", taskStyle.Render("[TASK]"), rec.Task, code)
		if rec.Task != "" {
			if code == 0 {
				v.status[rec.Task] = "OK"
			} else {
				v.status[rec.Task] = fmt.Sprintf("FAIL(%d)", code)
			}
		}
		if rec.Task == v.activeTask {
			v.activeTask = ""
			v.activeLog = ""
			v.activeInteractive = false
		}
	case events.KindRunEnd:
		return true
	}
	return false
}

// interactiveDiscovery reports whether the operator is in a live
// discovery interview, where long silences are expected think-time.
func (v *view) interactiveDiscovery() bool {
	return v.activeInteractive && v.phase == "discovery"
}

func (v *view) statusLine(now time.Time) string {
	var running, done []string
	for name, st := range v.status {
		switch {
		case st == "RUNNING":
			running = append(running, name)
		case st == "OK" || strings.HasPrefix(st, "FAIL"):
			done = append(done, name)
		}
	}
	sort.Strings(running)
	total := v.tasksTotal
	if total == 0 {
		total = len(v.status)
	}
	elapsed := "00:00"
	if !v.startedAt.IsZero() {
		elapsed = formatDuration(now.Sub(v.startedAt))
	}
	runningStr := "-"
	if len(running) > 0 {
		runningStr = strings.Join(running, ",")
	}
	return fmt.Sprintf("[STATUS] phase=%s run_id=%s running=%s done=%d/%d elapsed=%s",
		v.phase, v.runID, runningStr, len(done), total, elapsed)
}

// Watcher tails one run.
type Watcher struct {
	opts Options

	view         view
	offset       int64
	lastLogMtime time.Time
	haveMtime    bool
	nextStatusAt time.Time
}

func New(opts Options) *Watcher {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.StatusInterval == 0 {
		opts.StatusInterval = DefaultStatusInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Console == nil {
		opts.Console = func(format string, args ...any) {
			fmt.Fprintf(os.Stdout, format+"\n", args...)
		}
	}
	return &Watcher{
		opts:         opts,
		nextStatusAt: opts.Now().Add(opts.StatusInterval),
	}
}

// Run polls until the scheduler exits, the run ends, or a stall fires.
func (w *Watcher) Run(ctx context.Context) error {
	w.opts.Console("[WATCH] protocol monitor started")
	for {
		if !pidAlive(w.opts.PID) {
			w.opts.Console("[WATCH] orchestrator exited")
			return nil
		}

		ended, err := w.poll()
		if err != nil {
			// Transient: the log may not exist yet or be mid-rotation.
			w.opts.Console("[WATCH] read error: %v", err)
		}
		if ended {
			w.opts.Console("[WATCH] run_end")
			return nil
		}

		if w.checkStall() {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(w.opts.PollInterval):
		}
	}
}

// poll consumes new events and emits a status line when due. Exposed to
// tests through the package's internal surface.
func (w *Watcher) poll() (ended bool, err error) {
	recs, offset, err := events.ReadFrom(w.opts.EventLog, w.offset)
	if err != nil {
		return false, err
	}
	w.offset = offset
	now := w.opts.Now()
	for _, rec := range recs {
		if rec.Event == events.KindTaskStart {
			// New active task: start a fresh mtime baseline.
			w.haveMtime = false
		}
		if w.view.apply(rec, now, w.console) {
			ended = true
		}
	}

	if w.opts.StatusInterval > 0 && w.view.phase != "" && !now.Before(w.nextStatusAt) {
		line := w.view.statusLine(now)
		w.appendLine(w.opts.StatusLog, line)
		if !w.view.interactiveDiscovery() {
			w.opts.Console("%s", statusStyle.Render(line))
		}
		w.nextStatusAt = now.Add(w.opts.StatusInterval)
	}
	return ended, nil
}

// checkStall inspects the active task's log mtime and fires at most one
// alert. Returns true when the watcher should stop.
func (w *Watcher) checkStall() bool {
	if w.opts.StallTimeout <= 0 || w.view.activeLog == "" {
		return false
	}
	if w.view.interactiveDiscovery() {
		// Operator think-time during the interview is not a stall.
		return false
	}
	info, err := os.Stat(w.view.activeLog)
	if err != nil {
		return false
	}
	mtime := info.ModTime()
	if !w.haveMtime || !mtime.Equal(w.lastLogMtime) {
		w.lastLogMtime = mtime
		w.haveMtime = true
		return false
	}

	now := w.opts.Now()
	stalledFor := now.Sub(mtime)
	if stalledFor < w.opts.StallTimeout {
		return false
	}

	message := fmt.Sprintf("[ALERT] task '%s' stalled for %ds (log: %s)",
		w.view.activeTask, int(stalledFor.Seconds()), w.view.activeLog)
	w.opts.Console("%s", alertStyle.Render(message))
	w.appendLine(w.opts.AlertsLog, message)

	if w.opts.KillOnStall {
		_ = syscall.Kill(w.opts.PID, syscall.SIGTERM)
		time.Sleep(2 * time.Second)
		if pidAlive(w.opts.PID) {
			_ = syscall.Kill(w.opts.PID, syscall.SIGKILL)
		}
	}
	return true
}

func (w *Watcher) console(format string, args ...any) {
	w.opts.Console(format, args...)
}

// appendLine writes a timestamped line to a side log, creating parents
// as needed. Failures are ignored; the next poll retries.
func (w *Watcher) appendLine(path, message string) {
	if path == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer f.Close()
	fmt.Fprintf(f, "%s %s\n", w.opts.Now().Format("2006-01-02T15:04:05"), message)
}

// pidAlive probes a pid with signal 0. EPERM still means alive.
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	return err == nil || err == syscall.EPERM
}

func formatDuration(d time.Duration) string {
	total := int(d.Seconds())
	if total < 0 {
		total = 0
	}
	hours := total / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60
	if hours > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%02d:%02d", minutes, seconds)
}
