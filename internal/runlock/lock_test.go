package runlock

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAcquireWritesPayload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "framework-run.lock")
	lock, err := Acquire(path, Info{RunID: "r1", Phase: "main", StartedAt: "2026-08-26T10:00:00"})
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer lock.Release()

	info, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if info.RunID != "r1" || info.Phase != "main" {
		t.Errorf("payload = %+v", info)
	}
	if info.PID != os.Getpid() {
		t.Errorf("PID = %d, want %d", info.PID, os.Getpid())
	}
}

func TestAcquireConflict(t *testing.T) {
	path := filepath.Join(t.TempDir(), "framework-run.lock")
	lock, err := Acquire(path, Info{RunID: "r1", Phase: "main"})
	if err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	defer lock.Release()

	_, err = Acquire(path, Info{RunID: "r2", Phase: "main"})
	if !errors.Is(err, ErrLockHeld) {
		t.Fatalf("second Acquire = %v, want ErrLockHeld", err)
	}
	if !strings.Contains(err.Error(), "r1") {
		t.Errorf("error %q does not identify the holder", err)
	}
}

func TestReleaseRemovesFileAndIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "framework-run.lock")
	lock, err := Acquire(path, Info{RunID: "r1", Phase: "main"})
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("lock file still present after Release")
	}
	if err := lock.Release(); err != nil {
		t.Errorf("second Release: %v", err)
	}

	// The lock can be re-acquired after release.
	lock2, err := Acquire(path, Info{RunID: "r2", Phase: "main"})
	if err != nil {
		t.Fatalf("re-Acquire: %v", err)
	}
	_ = lock2.Release()
}

func TestCheckForeign(t *testing.T) {
	dir := t.TempDir()

	t.Run("no lock", func(t *testing.T) {
		if err := CheckForeign(filepath.Join(dir, "absent.lock"), "r1"); err != nil {
			t.Errorf("CheckForeign = %v, want nil", err)
		}
	})

	t.Run("own lock", func(t *testing.T) {
		path := filepath.Join(dir, "own.lock")
		lock, err := Acquire(path, Info{RunID: "r1", Phase: "main"})
		if err != nil {
			t.Fatalf("Acquire: %v", err)
		}
		defer lock.Release()
		if err := CheckForeign(path, "r1"); err != nil {
			t.Errorf("CheckForeign(own) = %v, want nil", err)
		}
	})

	t.Run("foreign active lock", func(t *testing.T) {
		path := filepath.Join(dir, "foreign.lock")
		lock, err := Acquire(path, Info{RunID: "r1", Phase: "main"})
		if err != nil {
			t.Fatalf("Acquire: %v", err)
		}
		defer lock.Release()
		err = CheckForeign(path, "r2")
		if err == nil || !strings.Contains(err.Error(), "active run lock") {
			t.Errorf("CheckForeign(foreign) = %v, want active-lock error", err)
		}
	})

	t.Run("stale lock", func(t *testing.T) {
		// A payload naming a dead pid is reported as stale, not active.
		path := filepath.Join(dir, "stale.lock")
		payload := `{"run_id":"r1","phase":"main","started_at":"2026-08-26T09:00:00","pid":4194303}`
		if err := os.WriteFile(path, []byte(payload), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		err := CheckForeign(path, "r2")
		if err == nil || !strings.Contains(err.Error(), "stale") {
			t.Errorf("CheckForeign(stale) = %v, want stale-lock error", err)
		}
	})
}
