package schedule

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
)

// exitMsg is delivered by a child's wait goroutine when it terminates.
type exitMsg struct {
	task string
	code int
}

// reaper supervises spawned children. Each child gets its own wait
// goroutine feeding a channel the loop drains without blocking, so the
// tick stays responsive while any number of tasks run.
type reaper struct {
	mu      sync.Mutex
	exits   chan exitMsg
	running map[string]*exec.Cmd
	closers map[string]*os.File
}

func newReaper() *reaper {
	return &reaper{
		exits:   make(chan exitMsg, 64),
		running: make(map[string]*exec.Cmd),
		closers: make(map[string]*os.File),
	}
}

// spawnShell starts a runner command through the shell in dir, with
// stdout and stderr appended to the task's log file. The child runs in
// its own process group so a later kill takes the whole subtree.
func (r *reaper) spawnShell(task, command, dir, logPath string) error {
	logFile, err := os.Create(logPath)
	if err != nil {
		return fmt.Errorf("open task log %s: %w", logPath, err)
	}

	cmd := exec.Command("sh", "-c", command)
	cmd.Dir = dir
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		_ = logFile.Close()
		return fmt.Errorf("start task %s: %w", task, err)
	}

	r.track(task, cmd, logFile)
	return nil
}

// spawnForeground starts argv attached to the operator's terminal. Used
// for interactive tasks, which the session runner mirrors to a
// transcript itself.
func (r *reaper) spawnForeground(task string, argv []string, dir string) error {
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start interactive task %s: %w", task, err)
	}

	r.track(task, cmd, nil)
	return nil
}

func (r *reaper) track(task string, cmd *exec.Cmd, logFile *os.File) {
	r.mu.Lock()
	r.running[task] = cmd
	if logFile != nil {
		r.closers[task] = logFile
	}
	r.mu.Unlock()

	go func() {
		err := cmd.Wait()
		r.exits <- exitMsg{task: task, code: exitCode(err)}
	}()
}

// drain collects every exit delivered so far without blocking.
func (r *reaper) drain() []exitMsg {
	var msgs []exitMsg
	for {
		select {
		case msg := <-r.exits:
			r.mu.Lock()
			delete(r.running, msg.task)
			if f, ok := r.closers[msg.task]; ok {
				_ = f.Close()
				delete(r.closers, msg.task)
			}
			r.mu.Unlock()
			msgs = append(msgs, msg)
		default:
			return msgs
		}
	}
}

// count returns the number of children still running.
func (r *reaper) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.running)
}

// killAll terminates every remaining child's process group. Called on
// fatal loop exit so no task outlives its run.
func (r *reaper) killAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, cmd := range r.running {
		if cmd.Process == nil {
			continue
		}
		_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
	}
}

// exitCode maps a Wait error to a process exit code, using the shell
// convention 128+signal for signaled children.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		if ws, ok := ee.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			return 128 + int(ws.Signal())
		}
		return ee.ExitCode()
	}
	return 1
}
