package events

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	logFileMode = 0o644
	logDirMode  = 0o755
)

// Writer appends records to the event log. Appends are serialized by a
// mutex within the process and written as a single O_APPEND write, so a
// reader never observes an interleaved record from this writer.
type Writer struct {
	path string
	now  func() time.Time
	mu   sync.Mutex
}

// NewWriter builds a writer for the event log at path.
func NewWriter(path string) *Writer {
	return &Writer{path: path, now: time.Now}
}

// Path returns the event log location.
func (w *Writer) Path() string { return w.path }

// Append stamps and writes one record. The file is opened per append:
// the log is shared state and holding it open would pin a deleted inode
// if an operator rotates the file between runs.
func (w *Writer) Append(rec Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if rec.Timestamp == "" {
		rec.Timestamp = Stamp(w.now())
	}

	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", rec.Event, err)
	}

	if err := os.MkdirAll(filepath.Dir(w.path), logDirMode); err != nil {
		return fmt.Errorf("create event log directory: %w", err)
	}
	file, err := os.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, logFileMode)
	if err != nil {
		return fmt.Errorf("open event log %s: %w", w.path, err)
	}
	if _, err := file.Write(append(line, '\n')); err != nil {
		_ = file.Close()
		return fmt.Errorf("append event log %s: %w", w.path, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close event log %s: %w", w.path, err)
	}
	return nil
}
