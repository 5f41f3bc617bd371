package summary

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func sampleData(runID string, tasks ...TaskLine) Data {
	return Data{
		RunID:    runID,
		Phase:    "main",
		Started:  time.Date(2026, 8, 26, 10, 0, 0, 0, time.Local),
		Finished: time.Date(2026, 8, 26, 10, 15, 0, 0, time.Local),
		Version:  "1.0.0",
		Tasks:    tasks,
	}
}

func TestWriteProducesLatestAndSuffixed(t *testing.T) {
	dir := t.TempDir()
	data := sampleData("r1",
		TaskLine{Name: "a", Status: "OK"},
		TaskLine{Name: "b", Status: "FAIL (7)"},
		TaskLine{Name: "c", Status: "BLOCKED (deps: b)"},
	)

	latest, err := Write(dir, data)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if filepath.Base(latest) != "orchestrator-run-summary.md" {
		t.Errorf("latest = %s", latest)
	}

	suffixed := filepath.Join(dir, "orchestrator-run-summary-main-r1.md")
	latestContent, err := os.ReadFile(latest)
	if err != nil {
		t.Fatalf("read latest: %v", err)
	}
	suffixedContent, err := os.ReadFile(suffixed)
	if err != nil {
		t.Fatalf("read suffixed: %v", err)
	}
	if string(latestContent) != string(suffixedContent) {
		t.Error("latest and suffixed summaries differ")
	}

	text := string(latestContent)
	for _, want := range []string{
		"# Orchestrator Run Summary",
		"- Run ID: r1",
		"- Phase: main",
		"- a: OK",
		"- b: FAIL (7)",
		"- c: BLOCKED (deps: b)",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("summary missing %q", want)
		}
	}
}

func TestClassify(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name string
		data Data
		want bool
	}{
		{"all ok", sampleData("ok", TaskLine{Name: "a", Status: "OK"}), true},
		{"failure", sampleData("fail", TaskLine{Name: "a", Status: "FAIL (7)"}), false},
		{"blocked", sampleData("blocked", TaskLine{Name: "a", Status: "BLOCKED (deps: x)"}), false},
		{"paused", sampleData("paused", TaskLine{Name: "a", Status: "PAUSED"}), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path, err := Write(dir, tt.data)
			if err != nil {
				t.Fatalf("Write: %v", err)
			}
			got, err := Classify(path)
			if err != nil {
				t.Fatalf("Classify: %v", err)
			}
			if got != tt.want {
				t.Errorf("Classify = %v, want %v", got, tt.want)
			}
		})
	}

	t.Run("recorded error", func(t *testing.T) {
		data := sampleData("err", TaskLine{Name: "a", Status: "OK"})
		data.Error = "no runnable tasks remaining"
		path, err := Write(dir, data)
		if err != nil {
			t.Fatalf("Write: %v", err)
		}
		got, err := Classify(path)
		if err != nil {
			t.Fatalf("Classify: %v", err)
		}
		if got {
			t.Error("Classify = true for a run with a recorded error")
		}
	})
}

func TestLatestForPhase(t *testing.T) {
	dir := t.TempDir()
	if got := LatestForPhase(dir, "main"); got != "" {
		t.Errorf("LatestForPhase(empty) = %q", got)
	}

	if _, err := Write(dir, sampleData("r1", TaskLine{Name: "a", Status: "OK"})); err != nil {
		t.Fatalf("Write r1: %v", err)
	}
	older := filepath.Join(dir, "orchestrator-run-summary-main-r1.md")
	past := time.Now().Add(-time.Hour)
	if err := os.Chtimes(older, past, past); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	if _, err := Write(dir, sampleData("r2", TaskLine{Name: "a", Status: "OK"})); err != nil {
		t.Fatalf("Write r2: %v", err)
	}

	got := LatestForPhase(dir, "main")
	if filepath.Base(got) != "orchestrator-run-summary-main-r2.md" {
		t.Errorf("LatestForPhase = %s, want the r2 summary", got)
	}
	if got := LatestForPhase(dir, "post"); got != "" {
		t.Errorf("LatestForPhase(post) = %q, want none", got)
	}
}
