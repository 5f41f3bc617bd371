// Package session runs one interactive child program under a
// pseudo-terminal, mirroring every byte to a transcript while the
// operator converses with it, and implements the in-band pause
// protocol.
package session

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/creack/pty"
	"golang.org/x/term"
)

// PausedExitCode is the session runner's exit code whenever a pause was
// requested, regardless of how the child actually exited.
const PausedExitCode = 2

// DefaultGrace is how long a paused child may keep running before it is
// terminated.
const DefaultGrace = 20 * time.Second

// Options configures one interactive session.
type Options struct {
	Command      []string // argv of the child program
	Transcript   string
	PauseMarker  string // "" disables the pause marker
	PauseCommand string
	PromptFile   string
	PromptMode   string // "stdin" seeds over the PTY, "arg" appends to argv
	Append       bool   // append to an existing transcript (resume)
	Grace        time.Duration

	Stdin  *os.File
	Stdout *os.File
	Now    func() time.Time
}

// Run executes the session and returns the process exit code to
// propagate: the pause sentinel when a pause was requested, otherwise
// the child's own exit code.
func Run(opts Options) (int, error) {
	if len(opts.Command) == 0 {
		return 1, fmt.Errorf("missing command to run")
	}
	if opts.PauseCommand == "" {
		opts.PauseCommand = "/pause"
	}
	if opts.Grace <= 0 {
		opts.Grace = DefaultGrace
	}
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	transcript, err := openTranscript(opts.Transcript, opts.Append)
	if err != nil {
		return 1, err
	}
	defer transcript.Close()

	argv := append([]string(nil), opts.Command...)
	prompt := ""
	if opts.PromptFile != "" {
		data, err := os.ReadFile(opts.PromptFile)
		if err == nil {
			prompt = strings.TrimRight(string(data), "\n")
		}
	}
	if opts.PromptMode == "arg" && prompt != "" {
		argv = append(argv, prompt)
		prompt = ""
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	ptmx, err := pty.Start(cmd)
	if err != nil {
		return 1, fmt.Errorf("start %s under pty: %w", argv[0], err)
	}
	defer ptmx.Close()

	stdinFd := int(opts.Stdin.Fd())
	if term.IsTerminal(stdinFd) {
		// Mirror the operator's window into the child and keep it in
		// sync; restore the terminal on every exit path.
		_ = pty.InheritSize(opts.Stdin, ptmx)
		winch := make(chan os.Signal, 1)
		signal.Notify(winch, syscall.SIGWINCH)
		go func() {
			for range winch {
				_ = pty.InheritSize(opts.Stdin, ptmx)
			}
		}()
		defer func() { signal.Stop(winch); close(winch) }()

		oldState, err := term.MakeRaw(stdinFd)
		if err == nil {
			defer term.Restore(stdinFd, oldState)
		}
	}

	// Seed the session once with the prompt, over the terminal channel.
	if prompt != "" {
		if _, err := ptmx.WriteString(prompt + "\n"); err != nil {
			return 1, fmt.Errorf("seed prompt: %w", err)
		}
	}

	done := make(chan int, 1)
	go func() {
		err := cmd.Wait()
		done <- childExitCode(err)
	}()

	pauseRequested := make(chan struct{}, 1)
	go bridge(opts, ptmx, transcript, pauseRequested)

	select {
	case code := <-done:
		return code, nil
	case <-pauseRequested:
	}

	// Pause requested: give the child a grace window to exit on its
	// own, then terminate it.
	select {
	case <-done:
	case <-time.After(opts.Grace):
		_ = cmd.Process.Signal(syscall.SIGTERM)
		select {
		case <-done:
		case <-time.After(time.Second):
			_ = cmd.Process.Kill()
			<-done
		}
	}
	return PausedExitCode, nil
}

// bridge runs the bidirectional copy loop. Child output goes to the
// operator and the transcript; operator input goes to the child and the
// transcript, scanned line-by-line for the pause command.
func bridge(opts Options, ptmx *os.File, transcript *os.File, pauseRequested chan<- struct{}) {
	// Child -> operator + transcript.
	go func() {
		buf := make([]byte, 4096)
		for {
			n, err := ptmx.Read(buf)
			if n > 0 {
				_, _ = opts.Stdout.Write(buf[:n])
				_, _ = transcript.Write(buf[:n])
				_ = transcript.Sync()
			}
			if err != nil {
				return
			}
		}
	}()

	// Operator -> child + transcript, with pause scanning.
	scanner := newPauseScanner(opts.PauseCommand)
	buf := make([]byte, 4096)
	paused := false
	for {
		n, err := opts.Stdin.Read(buf)
		if n > 0 {
			_, _ = ptmx.Write(buf[:n])
			_, _ = transcript.Write(buf[:n])
			if !paused && scanner.scan(buf[:n]) {
				paused = true
				notice := fmt.Sprintf("\r\n[PAUSE] Session paused at %s. Re-run the protocol to resume.\r\n",
					opts.Now().Format("2006-01-02T15:04:05"))
				_, _ = opts.Stdout.WriteString(notice)
				_, _ = transcript.WriteString(notice)
				_ = transcript.Sync()
				if err := writePauseMarker(opts); err != nil {
					fmt.Fprintf(opts.Stdout, "[PAUSE] failed to write pause marker: %v\r\n", err)
				}
				pauseRequested <- struct{}{}
			}
		}
		if err != nil {
			return
		}
	}
}

// pauseScanner accumulates operator input and reports when a complete
// line exactly matches the pause command. A line may arrive split
// across reads; both CR and LF terminate a line since the terminal is
// in raw mode.
type pauseScanner struct {
	command string
	buffer  []byte
}

func newPauseScanner(command string) *pauseScanner {
	return &pauseScanner{command: command}
}

func (s *pauseScanner) scan(data []byte) bool {
	s.buffer = append(s.buffer, data...)
	matched := false
	for {
		idx := indexLineEnd(s.buffer)
		if idx < 0 {
			return matched
		}
		line := strings.TrimSpace(string(s.buffer[:idx]))
		s.buffer = s.buffer[idx+1:]
		if line == s.command {
			matched = true
		}
	}
}

func indexLineEnd(data []byte) int {
	for i, b := range data {
		if b == '\n' || b == '\r' {
			return i
		}
	}
	return -1
}

// writePauseMarker persists the resumable pause marker.
func writePauseMarker(opts Options) error {
	if opts.PauseMarker == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(opts.PauseMarker), 0o755); err != nil {
		return err
	}
	content := fmt.Sprintf("paused_at: %s\ncommand: %s\n",
		opts.Now().Format("2006-01-02T15:04:05"), opts.PauseCommand)
	return os.WriteFile(opts.PauseMarker, []byte(content), 0o644)
}

func openTranscript(path string, appendMode bool) (*os.File, error) {
	if path == "" {
		return nil, fmt.Errorf("transcript path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create transcript directory: %w", err)
	}
	flags := os.O_CREATE | os.O_WRONLY
	if appendMode {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	file, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open transcript %s: %w", path, err)
	}
	return file, nil
}

// childExitCode maps a Wait error to the child's exit code.
func childExitCode(err error) int {
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
