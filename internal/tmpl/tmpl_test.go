package tmpl

import "testing"

func TestResolve(t *testing.T) {
	vars := Vars{RunID: "20260826-101500-ab12cd34", Phase: "main", Task: "api"}

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{
			name:  "all placeholders",
			input: "worktrees/{phase}/{task}-{run_id}",
			want:  "worktrees/main/api-20260826-101500-ab12cd34",
		},
		{
			name:  "no placeholders",
			input: "framework/logs/api.log",
			want:  "framework/logs/api.log",
		},
		{
			name:  "repeated placeholder",
			input: "task/{task}/{task}",
			want:  "task/api/api",
		},
		{
			name:    "unknown placeholder",
			input:   "worktrees/{taskname}",
			wantErr: true,
		},
		{
			name:  "shell braces are not placeholders",
			input: "echo ${HOME} {a b}",
			want:  "echo ${HOME} {a b}",
		},
		{
			name:  "unterminated brace",
			input: "worktrees/{task",
			want:  "worktrees/api",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resolve(tt.input, vars)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Resolve(%q) = %q, want error", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve(%q): %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("Resolve(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestResolveEmptyVarStillResolves(t *testing.T) {
	// A placeholder with an empty value substitutes to nothing rather
	// than erroring; only unknown names fail.
	got, err := Resolve("x/{phase}", Vars{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != "x/" {
		t.Errorf("got %q, want %q", got, "x/")
	}
}

func TestMustNotContain(t *testing.T) {
	if err := MustNotContain("codex"); err != nil {
		t.Errorf("MustNotContain(codex): %v", err)
	}
	if err := MustNotContain("codex-{task}"); err == nil {
		t.Error("MustNotContain(codex-{task}) = nil, want error")
	}
}
