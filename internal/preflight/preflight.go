// Package preflight validates the environment and the selected task
// set before any task starts. Every problem found is reported in one
// consolidated error so the operator fixes the configuration in a
// single pass instead of replaying the run error by error.
package preflight

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/mattn/go-isatty"

	"github.com/stagehand-dev/stagehand/internal/config"
	"github.com/stagehand-dev/stagehand/internal/graph"
	"github.com/stagehand-dev/stagehand/internal/tmpl"
	"github.com/stagehand-dev/stagehand/internal/worktree"
)

// Input carries everything preflight inspects.
type Input struct {
	ProjectRoot string
	LogsDir     string
	Runners     map[string]config.RunnerConfig
	Tasks       []graph.Task
	RunID       string
	Phase       graph.Phase
	// StdinIsTerminal overrides terminal detection in tests; when nil,
	// the real stdin is checked.
	StdinIsTerminal func() bool
	// IsGitRepo overrides repository detection in tests; when nil, the
	// project root is probed with git.
	IsGitRepo func(path string) bool
}

// shellBuiltins are command heads that need no PATH lookup.
var shellBuiltins = map[string]struct{}{
	"sh": {}, "bash": {}, "zsh": {},
}

// Check runs all preflight validations and returns a consolidated
// error listing every failure, or nil.
func Check(in Input) error {
	var errs []string
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	if _, err := exec.LookPath("git"); err != nil {
		add("git is not available on PATH")
	} else if !isGitRepo(in) {
		add("project root is not a git repository: %s", in.ProjectRoot)
	}

	if err := probeWritable(in.LogsDir); err != nil {
		add("logs_dir is not writable: %s (%v)", in.LogsDir, err)
	}

	for name, runner := range in.Runners {
		head := commandHead(runner.Command)
		if head == "" {
			add("runner %q has empty command", name)
			continue
		}
		if _, builtin := shellBuiltins[head]; builtin {
			continue
		}
		if _, err := exec.LookPath(head); err != nil {
			add("runner %q binary not found on PATH: %s", name, head)
		}
	}

	worktrees := map[string]string{} // resolved path -> task name
	branches := map[string]string{}
	logs := map[string]string{}
	interactiveTasks := false

	for _, task := range in.Tasks {
		vars := tmpl.Vars{RunID: in.RunID, Phase: string(in.Phase), Task: task.Name}

		wtPath, err := tmpl.Resolve(task.Worktree, vars)
		if err != nil {
			add("task %q: %v", task.Name, err)
		} else {
			wtPath = config.ResolvePath(wtPath, in.ProjectRoot)
			if other, dup := worktrees[wtPath]; dup {
				add("tasks %q and %q resolve to the same worktree path: %s", other, task.Name, wtPath)
			}
			worktrees[wtPath] = task.Name
		}

		branch, err := tmpl.Resolve(task.Branch, vars)
		if err != nil {
			add("task %q: %v", task.Name, err)
		} else {
			if other, dup := branches[branch]; dup {
				add("tasks %q and %q resolve to the same branch: %s", other, task.Name, branch)
			}
			branches[branch] = task.Name
		}

		logPath := task.Log
		if logPath == "" {
			logPath = filepath.Join(in.LogsDir, task.Name+".log")
		} else {
			resolved, err := tmpl.Resolve(logPath, vars)
			if err != nil {
				add("task %q: %v", task.Name, err)
				resolved = ""
			}
			logPath = config.ResolvePath(resolved, in.ProjectRoot)
		}
		if logPath != "" {
			if other, dup := logs[logPath]; dup {
				add("tasks %q and %q resolve to the same log path: %s", other, task.Name, logPath)
			}
			logs[logPath] = task.Name
			if info, err := os.Stat(logPath); err == nil && info.IsDir() {
				add("task %q log path is a directory: %s", task.Name, logPath)
			}
		}

		promptPath := config.ResolvePath(task.Prompt, in.ProjectRoot)
		info, err := os.Stat(promptPath)
		switch {
		case err != nil:
			add("prompt file not found: %s", promptPath)
		case info.IsDir():
			add("task %q prompt path is a directory: %s", task.Name, promptPath)
		}

		if task.Interactive {
			interactiveTasks = true
			if _, ok := in.Runners[task.Runner]; !ok {
				add("task %q uses unknown runner %q", task.Name, task.Runner)
			}
		}
	}

	if interactiveTasks && !stdinIsTerminal(in) {
		add("interactive tasks selected but stdin is not a terminal")
	}

	if len(errs) > 0 {
		return fmt.Errorf("preflight failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}

// probeWritable creates the directory if needed and verifies a file can
// be written inside it.
func probeWritable(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	probe := filepath.Join(dir, ".write_probe")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		return err
	}
	return os.Remove(probe)
}

// commandHead returns the first token of a shell command.
func commandHead(command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func stdinIsTerminal(in Input) bool {
	if in.StdinIsTerminal != nil {
		return in.StdinIsTerminal()
	}
	return isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd())
}

func isGitRepo(in Input) bool {
	if in.IsGitRepo != nil {
		return in.IsGitRepo(in.ProjectRoot)
	}
	return worktree.IsRepo(in.ProjectRoot)
}
