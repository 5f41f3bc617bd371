package graph

import (
	"strings"
	"testing"

	"github.com/stagehand-dev/stagehand/internal/config"
)

func rawTask(name string, deps ...string) config.RawTask {
	return config.RawTask{
		Name:      name,
		DependsOn: deps,
		Phase:     "main",
		Worktree:  "worktrees/" + name,
		Prompt:    "prompts/" + name + ".md",
	}
}

func TestNormalizePreservesOrder(t *testing.T) {
	raw := []config.RawTask{rawTask("c"), rawTask("a", "c"), rawTask("b", "a")}
	tasks, err := Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(tasks) != 3 {
		t.Fatalf("got %d tasks, want 3", len(tasks))
	}
	for i, want := range []string{"c", "a", "b"} {
		if tasks[i].Name != want {
			t.Errorf("tasks[%d].Name = %q, want %q", i, tasks[i].Name, want)
		}
	}
}

func TestNormalizeRejections(t *testing.T) {
	missingWorktree := rawTask("a")
	missingWorktree.Worktree = ""
	missingPrompt := rawTask("a")
	missingPrompt.Prompt = ""
	badPhase := rawTask("a")
	badPhase.Phase = "deploy"
	templatedRunner := rawTask("a")
	templatedRunner.Runner = "codex-{task}"

	tests := []struct {
		name    string
		raw     []config.RawTask
		wantErr string
	}{
		{"empty name", []config.RawTask{{Worktree: "w", Prompt: "p", Phase: "main"}}, "non-empty name"},
		{"duplicate name", []config.RawTask{rawTask("a"), rawTask("a")}, "duplicate task name"},
		{"missing worktree", []config.RawTask{missingWorktree}, "worktree"},
		{"missing prompt", []config.RawTask{missingPrompt}, "prompt"},
		{"unknown phase", []config.RawTask{badPhase}, "invalid phase"},
		{"templated runner", []config.RawTask{templatedRunner}, "unexpected placeholder"},
		{"unknown dependency", []config.RawTask{rawTask("a", "ghost")}, "unknown task"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Normalize(tt.raw)
			if err == nil {
				t.Fatal("Normalize = nil error, want rejection")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestSelectManualGate(t *testing.T) {
	gated := rawTask("gated")
	manual := true
	gated.Manual = &manual
	tasks, err := Normalize([]config.RawTask{rawTask("a"), gated})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}

	selected, err := Select(tasks, PhaseMain, false)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(selected) != 1 || selected[0].Name != "a" {
		t.Errorf("Select without manual = %v, want [a]", names(selected))
	}

	selected, err = Select(tasks, PhaseMain, true)
	if err != nil {
		t.Fatalf("Select includeManual: %v", err)
	}
	if len(selected) != 2 {
		t.Errorf("Select with manual = %v, want [a gated]", names(selected))
	}
}

func TestSelectRejectsDependencyOnExcludedTask(t *testing.T) {
	post := rawTask("report", "build")
	post.Phase = "post"
	tasks, err := Normalize([]config.RawTask{rawTask("build"), post})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}

	_, err = Select(tasks, PhasePost, false)
	if err == nil {
		t.Fatal("Select = nil error, want excluded-dependency rejection")
	}
	if !strings.Contains(err.Error(), "depends on excluded tasks: build") {
		t.Errorf("error %q does not name the excluded dependency", err)
	}
}

func TestSelectFiltersPhase(t *testing.T) {
	interview := rawTask("interview")
	interview.Phase = "discovery"
	tasks, err := Normalize([]config.RawTask{interview, rawTask("build")})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}

	selected, err := Select(tasks, PhaseDiscovery, false)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(selected) != 1 || selected[0].Name != "interview" {
		t.Errorf("Select(discovery) = %v, want [interview]", names(selected))
	}
}

func names(tasks []Task) []string {
	out := make([]string, len(tasks))
	for i, task := range tasks {
		out[i] = task.Name
	}
	return out
}
