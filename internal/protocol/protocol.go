// Package protocol is the run coordinator: it decides which phases to
// run, skips phases whose latest summary already classifies as
// successful, and launches the scheduler and the stall watchdog as a
// pair for each phase that remains.
package protocol

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/stagehand-dev/stagehand/internal/config"
	"github.com/stagehand-dev/stagehand/internal/graph"
	"github.com/stagehand-dev/stagehand/internal/summary"
)

// Environment knobs honored by the coordinator.
const (
	EnvSkipDiscovery  = "STAGEHAND_SKIP_DISCOVERY"
	EnvResume         = "STAGEHAND_RESUME"
	EnvStallTimeout   = "STAGEHAND_STALL_TIMEOUT"
	EnvWatchPoll      = "STAGEHAND_WATCH_POLL"
	EnvStatusInterval = "STAGEHAND_STATUS_INTERVAL"
	EnvStallKill      = "STAGEHAND_STALL_KILL"
)

// hostScanIgnore lists entries that do not count as pre-existing work
// when deciding whether the host is an empty project or a legacy one.
var hostScanIgnore = map[string]struct{}{
	"framework":            {},
	"framework.zip":        {},
	"install-framework.sh": {},
	"AGENTS.md":            {},
	"AGENTS.override.md":   {},
	".git":                 {},
	".gitignore":           {},
	".DS_Store":            {},
}

// Options configures one coordinator invocation.
type Options struct {
	ConfigPath  string
	Phase       string // non-empty forces a single phase
	ProjectRoot string
	LogsDir     string
	SummaryDir  string

	// Binaries spawned per phase; defaults are the installed names.
	SchedulerBin string
	WatchBin     string

	Getenv func(string) string
	Logf   func(format string, args ...any)
}

// Coordinator runs phases in order with monitoring and resume.
type Coordinator struct {
	opts Options
}

func New(opts Options) *Coordinator {
	if opts.SchedulerBin == "" {
		opts.SchedulerBin = "stagehand"
	}
	if opts.WatchBin == "" {
		opts.WatchBin = "stagehand-watch"
	}
	if opts.Getenv == nil {
		opts.Getenv = os.Getenv
	}
	if opts.Logf == nil {
		opts.Logf = func(format string, args ...any) {
			fmt.Fprintf(os.Stdout, format+"\n", args...)
		}
	}
	return &Coordinator{opts: opts}
}

// Run executes every selected phase and returns the process exit code.
func (c *Coordinator) Run(ctx context.Context) int {
	phases := c.phases()
	resume := resumeEnabled(c.opts.Getenv(EnvResume))

	discoveryOK := false
	for _, phase := range phases {
		if resume && c.phaseCompleted(string(phase)) {
			c.opts.Logf("[RESUME] skip %s (already completed)", phase)
			continue
		}
		c.opts.Logf("[PHASE] starting %s", phase)
		code, err := c.runPhase(ctx, string(phase))
		if err != nil {
			c.opts.Logf("[ALERT] phase '%s' failed to launch: %v", phase, err)
			return 1
		}
		if code == 2 && phase == graph.PhaseDiscovery {
			c.opts.Logf("[PAUSED] discovery interview paused. Re-run stagehand to continue.")
			return 0
		}
		if code != 0 {
			c.opts.Logf("[ALERT] phase '%s' failed (exit=%d)", phase, code)
			return code
		}
		if phase == graph.PhaseDiscovery {
			discoveryOK = true
		}
		time.Sleep(time.Second)
	}

	if discoveryOK {
		c.opts.Logf("Discovery complete. Review the generated spec, then confirm start of development:")
		c.opts.Logf("  stagehand orchestrate --phase main")
	}
	return 0
}

// phases selects the phase list: an explicit phase wins; otherwise an
// empty host gets discovery only, and a host with pre-existing work
// gets the legacy intake first.
func (c *Coordinator) phases() []graph.Phase {
	if c.opts.Phase != "" {
		return []graph.Phase{graph.Phase(c.opts.Phase)}
	}
	if c.hostHasExistingWork() {
		if config.EnvTruthy(c.opts.Getenv(EnvSkipDiscovery)) {
			return []graph.Phase{graph.PhaseLegacy}
		}
		return []graph.Phase{graph.PhaseLegacy, graph.PhaseDiscovery}
	}
	return []graph.Phase{graph.PhaseDiscovery}
}

func (c *Coordinator) hostHasExistingWork() bool {
	entries, err := os.ReadDir(c.opts.ProjectRoot)
	if err != nil {
		return false
	}
	for _, entry := range entries {
		if _, ignored := hostScanIgnore[entry.Name()]; !ignored {
			return true
		}
	}
	return false
}

// phaseCompleted reports whether the phase's most recent summary
// records a fully successful run.
func (c *Coordinator) phaseCompleted(phase string) bool {
	latest := summary.LatestForPhase(c.opts.SummaryDir, phase)
	if latest == "" {
		return false
	}
	ok, err := summary.Classify(latest)
	return err == nil && ok
}

// runPhase launches one scheduler invocation with its watchdog and
// waits for both. Returns the scheduler's exit code.
func (c *Coordinator) runPhase(ctx context.Context, phase string) (int, error) {
	sched := exec.CommandContext(ctx, c.opts.SchedulerBin, "orchestrate",
		"--config", c.opts.ConfigPath, "--phase", phase)
	sched.Dir = c.opts.ProjectRoot
	sched.Stdin = os.Stdin
	sched.Stdout = os.Stdout
	sched.Stderr = os.Stderr
	if err := sched.Start(); err != nil {
		return 0, fmt.Errorf("start scheduler: %w", err)
	}

	pidPath := filepath.Join(c.opts.LogsDir, config.SchedulerPIDName)
	if err := os.MkdirAll(c.opts.LogsDir, 0o755); err == nil {
		_ = os.WriteFile(pidPath, []byte(strconv.Itoa(sched.Process.Pid)), 0o644)
	}
	defer os.Remove(pidPath)

	watch := exec.CommandContext(ctx, c.opts.WatchBin, c.watchArgs(sched.Process.Pid)...)
	watch.Dir = c.opts.ProjectRoot
	watch.Stdout = os.Stdout
	watch.Stderr = os.Stderr
	watchStarted := watch.Start() == nil

	var code int
	g := new(errgroup.Group)
	g.Go(func() error {
		err := sched.Wait()
		code = procExitCode(err)
		if watchStarted {
			// The watcher notices the pid is gone on its next poll;
			// stop it if it lingers.
			time.AfterFunc(5*time.Second, func() { _ = watch.Process.Kill() })
		}
		return nil
	})
	if watchStarted {
		g.Go(func() error {
			_ = watch.Wait()
			return nil
		})
	}
	_ = g.Wait()
	return code, nil
}

func (c *Coordinator) watchArgs(pid int) []string {
	args := []string{
		"--pid", strconv.Itoa(pid),
		"--logs-dir", c.opts.LogsDir,
		"--stall-timeout", envOr(c.opts.Getenv(EnvStallTimeout), "900"),
		"--poll-interval", envOr(c.opts.Getenv(EnvWatchPoll), "2"),
		"--status-interval", envOr(c.opts.Getenv(EnvStatusInterval), "10"),
	}
	if resumeEnabled(c.opts.Getenv(EnvStallKill)) {
		args = append(args, "--kill-on-stall")
	}
	return args
}

// resumeEnabled treats an unset flag as on.
func resumeEnabled(value string) bool {
	if value == "" {
		return true
	}
	return config.EnvTruthy(value)
}

func envOr(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func procExitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return ee.ExitCode()
	}
	return 1
}
