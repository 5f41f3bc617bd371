package session

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestPauseScanner(t *testing.T) {
	tests := []struct {
		name   string
		chunks []string
		want   bool
	}{
		{
			name:   "exact match",
			chunks: []string{"/pause\n"},
			want:   true,
		},
		{
			name:   "carriage return terminator",
			chunks: []string{"/pause\r"},
			want:   true,
		},
		{
			name:   "split across reads",
			chunks: []string{"/pa", "use", "\n"},
			want:   true,
		},
		{
			name:   "embedded in other text",
			chunks: []string{"please /pause now\n"},
			want:   false,
		},
		{
			name:   "no terminator yet",
			chunks: []string{"/pause"},
			want:   false,
		},
		{
			name:   "surrounding whitespace trimmed",
			chunks: []string{"  /pause  \n"},
			want:   true,
		},
		{
			name:   "second line matches",
			chunks: []string{"hello\n/pause\n"},
			want:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newPauseScanner("/pause")
			got := false
			for _, chunk := range tt.chunks {
				if s.scan([]byte(chunk)) {
					got = true
				}
			}
			if got != tt.want {
				t.Errorf("scan(%q) = %v, want %v", tt.chunks, got, tt.want)
			}
		})
	}
}

func TestWritePauseMarker(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "logs", "interview.paused")
	now := time.Date(2026, 8, 26, 10, 30, 0, 0, time.Local)
	opts := Options{
		PauseMarker:  marker,
		PauseCommand: "/pause",
		Now:          func() time.Time { return now },
	}

	if err := writePauseMarker(opts); err != nil {
		t.Fatalf("writePauseMarker: %v", err)
	}
	data, err := os.ReadFile(marker)
	if err != nil {
		t.Fatalf("read marker: %v", err)
	}
	text := string(data)
	if !strings.Contains(text, "paused_at: 2026-08-26T10:30:00") {
		t.Errorf("marker missing timestamp: %s", text)
	}
	if !strings.Contains(text, "command: /pause") {
		t.Errorf("marker missing command: %s", text)
	}
}

func TestWritePauseMarkerDisabled(t *testing.T) {
	if err := writePauseMarker(Options{Now: time.Now}); err != nil {
		t.Errorf("writePauseMarker without path: %v", err)
	}
}

func TestOpenTranscript(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "logs", "interview.log")

	f, err := openTranscript(path, false)
	if err != nil {
		t.Fatalf("openTranscript: %v", err)
	}
	if _, err := f.WriteString("first session\n"); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = f.Close()

	// Append mode keeps the prior transcript; truncate mode replaces it.
	f, err = openTranscript(path, true)
	if err != nil {
		t.Fatalf("openTranscript append: %v", err)
	}
	if _, err := f.WriteString("resumed session\n"); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = f.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got := string(data); got != "first session\nresumed session\n" {
		t.Errorf("appended transcript = %q", got)
	}

	f, err = openTranscript(path, false)
	if err != nil {
		t.Fatalf("openTranscript truncate: %v", err)
	}
	_ = f.Close()
	data, err = os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(data) != 0 {
		t.Errorf("truncated transcript still has %d bytes", len(data))
	}
}

func TestOpenTranscriptRequiresPath(t *testing.T) {
	if _, err := openTranscript("", false); err == nil {
		t.Fatal("openTranscript(\"\") = nil error")
	}
}

func TestRunRequiresCommand(t *testing.T) {
	code, err := Run(Options{Transcript: filepath.Join(t.TempDir(), "t.log")})
	if err == nil {
		t.Fatal("Run without command = nil error")
	}
	if code != 1 {
		t.Errorf("code = %d, want 1", code)
	}
}
