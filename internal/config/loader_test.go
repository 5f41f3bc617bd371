package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

func TestLoadJSON(t *testing.T) {
	path := writeConfig(t, "orchestrator.json", `{
		"project_root": "/srv/project",
		"runners": {
			"codex": {"command": "codex exec \"$(cat {prompt})\"", "supports_session_attach": true}
		},
		"tasks": [
			{"name": "api", "worktree": "worktrees/api", "prompt": "prompts/api.md"},
			{"name": "ui", "depends_on": ["api"], "worktree": "worktrees/ui", "prompt": "prompts/ui.md", "branch": "feat/{task}"}
		]
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ProjectRoot != "/srv/project" {
		t.Errorf("ProjectRoot = %q", cfg.ProjectRoot)
	}
	if cfg.LogsDir != DefaultLogsDir {
		t.Errorf("LogsDir = %q, want default %q", cfg.LogsDir, DefaultLogsDir)
	}
	runner, ok := cfg.Runners["codex"]
	if !ok || !runner.SupportsSessionAttach {
		t.Errorf("Runners[codex] = %+v, want supports_session_attach", runner)
	}
	if len(cfg.Tasks) != 2 {
		t.Fatalf("got %d tasks, want 2", len(cfg.Tasks))
	}
	// Defaults fill omitted per-task fields but never override set ones.
	if got := cfg.Tasks[0]; got.Phase != "main" || got.Runner != "codex" || got.Branch != "task/{task}" {
		t.Errorf("task defaults not applied: %+v", got)
	}
	if cfg.Tasks[1].Branch != "feat/{task}" {
		t.Errorf("explicit branch overridden: %q", cfg.Tasks[1].Branch)
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, "orchestrator.yaml", `
project_root: .
runners:
  claude:
    command: claude -p "$(cat {prompt})"
tasks:
  - name: interview
    phase: discovery
    interactive: true
    runner: claude
    worktree: worktrees/interview
    prompt: prompts/interview.md
    pause_marker: framework/logs/interview.paused
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	task := cfg.Tasks[0]
	if !task.Interactive || task.Phase != "discovery" || task.PauseMarker == "" {
		t.Errorf("yaml task = %+v", task)
	}
}

func TestLoadUnknownExtensionFallsBack(t *testing.T) {
	path := writeConfig(t, "orchestrator.conf", "project_root: /tmp/x\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ProjectRoot != "/tmp/x" {
		t.Errorf("ProjectRoot = %q", cfg.ProjectRoot)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatal("Load = nil error for missing file")
	}
}

func TestLoadMalformed(t *testing.T) {
	path := writeConfig(t, "orchestrator.json", "{not json")
	if _, err := Load(path); err == nil {
		t.Fatal("Load = nil error for malformed file")
	}
}

func TestApplyRunnerNoop(t *testing.T) {
	cfg := &Config{Runners: map[string]RunnerConfig{
		"codex": {Command: "codex exec {prompt}", SupportsSessionAttach: true},
	}}
	cfg.ApplyRunnerNoop()
	runner := cfg.Runners["codex"]
	if runner.Command != `cat "{prompt}" > /dev/null` {
		t.Errorf("Command = %q", runner.Command)
	}
	if !runner.SupportsSessionAttach {
		t.Error("noop replacement dropped the capability flag")
	}
}

func TestResolvePath(t *testing.T) {
	tests := []struct {
		value, base, want string
	}{
		{"", "/root", "/root"},
		{"/abs/path", "/root", "/abs/path"},
		{"rel/path", "/root", "/root/rel/path"},
	}
	for _, tt := range tests {
		if got := ResolvePath(tt.value, tt.base); got != tt.want {
			t.Errorf("ResolvePath(%q, %q) = %q, want %q", tt.value, tt.base, got, tt.want)
		}
	}
}

func TestEnvTruthy(t *testing.T) {
	for _, v := range []string{"1", "true", "YES", " on "} {
		if !EnvTruthy(v) {
			t.Errorf("EnvTruthy(%q) = false", v)
		}
	}
	for _, v := range []string{"", "0", "false", "off", "nope"} {
		if EnvTruthy(v) {
			t.Errorf("EnvTruthy(%q) = true", v)
		}
	}
}
