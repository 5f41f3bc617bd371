// Package runlock provides the cross-invocation mutual-exclusion lock
// for main-phase runs. The lock is a file whose presence signals an
// active run; its JSON payload identifies the holder.
package runlock

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

const (
	lockFileMode = 0o644
	lockDirMode  = 0o755
)

// ErrLockHeld signals that another run currently holds the lock.
var ErrLockHeld = errors.New("run lock already held")

// Info is the lock file payload.
type Info struct {
	RunID     string `json:"run_id"`
	Phase     string `json:"phase"`
	StartedAt string `json:"started_at"`
	PID       int    `json:"pid"`
}

// Lock holds an acquired run lock.
type Lock struct {
	file *os.File
	path string
}

// Acquire creates and flocks the run lock file, writing holder metadata.
// A lock file left behind by a dead process is treated as stale and
// taken over.
func Acquire(path string, info Info) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), lockDirMode); err != nil {
		return nil, fmt.Errorf("create run lock directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, lockFileMode)
	if err != nil {
		return nil, fmt.Errorf("open run lock %s: %w", path, err)
	}

	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		_ = file.Close()
		if errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.EWOULDBLOCK) {
			return nil, fmt.Errorf("%w: %s", ErrLockHeld, describeHolder(path))
		}
		return nil, fmt.Errorf("lock run lock %s: %w", path, err)
	}

	if info.PID == 0 {
		info.PID = os.Getpid()
	}
	if info.StartedAt == "" {
		info.StartedAt = time.Now().Format("2006-01-02T15:04:05")
	}
	payload, err := json.Marshal(info)
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("encode run lock payload: %w", err)
	}
	if err := file.Truncate(0); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("truncate run lock: %w", err)
	}
	if _, err := file.WriteAt(payload, 0); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("write run lock: %w", err)
	}

	return &Lock{file: file, path: path}, nil
}

// Release unlocks and removes the lock file. Safe to call more than
// once; the scheduler calls it on every exit path.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	file := l.file
	l.file = nil
	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_UN); err != nil {
		_ = file.Close()
		return fmt.Errorf("unlock run lock: %w", err)
	}
	if err := file.Close(); err != nil {
		return err
	}
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove run lock %s: %w", l.path, err)
	}
	return nil
}

// Read parses the lock file payload. Returns os.ErrNotExist when no
// lock is present.
func Read(path string) (Info, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Info{}, err
	}
	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		return Info{}, fmt.Errorf("parse run lock %s: %w", path, err)
	}
	return info, nil
}

// CheckForeign fails when an active lock held by a different run is
// present. Post and legacy phases call this before starting: they must
// not touch shared state while a main run is in flight. A lock whose
// holder process is gone is reported as stale rather than blocking.
func CheckForeign(path, runID string) error {
	info, err := Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if info.RunID == runID {
		return nil
	}
	if info.PID > 0 && !processExists(info.PID) {
		return fmt.Errorf("stale run lock at %s (run %s, pid %d no longer running); remove it to continue",
			path, info.RunID, info.PID)
	}
	return fmt.Errorf("active run lock detected at %s (run %s, phase %s); finish the main run first",
		path, info.RunID, info.Phase)
}

func describeHolder(path string) string {
	info, err := Read(path)
	if err != nil {
		return fmt.Sprintf("%s is held; wait for the other run to finish", path)
	}
	return fmt.Sprintf("%s is held by run %s (pid %d) since %s", path, info.RunID, info.PID, info.StartedAt)
}

// processExists checks whether a pid references a live process.
func processExists(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	if err == nil {
		return true
	}
	return errors.Is(err, syscall.EPERM)
}
