// Package summary writes and classifies human-readable run summaries.
// Each run produces both a fixed "latest" document and a run-id
// suffixed copy for history; the coordinator classifies prior summaries
// to decide which phases to skip on resume.
package summary

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const latestName = "orchestrator-run-summary.md"

// TaskLine is one task's final status line.
type TaskLine struct {
	Name   string
	Status string // OK | FAIL (code) | BLOCKED (deps: ...) | PAUSED
}

// Data is everything a summary document records.
type Data struct {
	RunID    string
	Phase    string
	Started  time.Time
	Finished time.Time
	Version  string
	Error    string
	Tasks    []TaskLine
}

// Write renders the summary into dir, both at the latest path and at a
// phase- and run-id-suffixed path. Returns the latest path.
func Write(dir string, data Data) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create summary directory %s: %w", dir, err)
	}

	var b strings.Builder
	b.WriteString("# Orchestrator Run Summary\n\n")
	fmt.Fprintf(&b, "- Run ID: %s\n", data.RunID)
	fmt.Fprintf(&b, "- Phase: %s\n", data.Phase)
	fmt.Fprintf(&b, "- Started: %s\n", data.Started.Format("2006-01-02T15:04:05"))
	fmt.Fprintf(&b, "- Finished: %s\n", data.Finished.Format("2006-01-02T15:04:05"))
	fmt.Fprintf(&b, "- Framework version: %s\n\n", data.Version)
	if data.Error != "" {
		fmt.Fprintf(&b, "- Error: %s\n\n", data.Error)
	}
	for _, task := range data.Tasks {
		fmt.Fprintf(&b, "- %s: %s\n", task.Name, task.Status)
	}
	content := []byte(b.String())

	latest := filepath.Join(dir, latestName)
	if err := os.WriteFile(latest, content, 0o644); err != nil {
		return "", fmt.Errorf("write summary %s: %w", latest, err)
	}

	suffixed := filepath.Join(dir, fmt.Sprintf("orchestrator-run-summary-%s-%s.md", data.Phase, data.RunID))
	if err := os.WriteFile(suffixed, content, 0o644); err != nil {
		return "", fmt.Errorf("write summary %s: %w", suffixed, err)
	}

	return latest, nil
}

// LatestForPhase finds the most recent suffixed summary for a phase, or
// "" when none exists.
func LatestForPhase(dir, phase string) string {
	pattern := filepath.Join(dir, fmt.Sprintf("orchestrator-run-summary-%s-*.md", phase))
	matches, err := filepath.Glob(pattern)
	if err != nil || len(matches) == 0 {
		return ""
	}
	sort.Slice(matches, func(i, j int) bool {
		return modTime(matches[i]).Before(modTime(matches[j]))
	})
	return matches[len(matches)-1]
}

// Classify reports whether a summary document records a fully
// successful run: no recorded error, no failed, blocked, or paused
// task.
func Classify(path string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}
	text := string(data)
	if strings.Contains(text, "- Error:") {
		return false, nil
	}
	if strings.Contains(text, "PAUSED") {
		return false, nil
	}
	for _, line := range strings.Split(text, "\n") {
		if strings.Contains(line, "FAIL (") || strings.Contains(line, "BLOCKED") {
			return false, nil
		}
	}
	return true, nil
}

func modTime(path string) time.Time {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}
