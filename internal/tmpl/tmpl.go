// Package tmpl resolves the closed placeholder set used in task path and
// branch templates: {run_id}, {phase}, and {task}.
package tmpl

import (
	"fmt"
	"strings"
)

// Vars holds the values substituted into a template. The set is closed:
// any other {name} placeholder left in the input is an error.
type Vars struct {
	RunID string
	Phase string
	Task  string
}

// Resolve substitutes the placeholder set into s. It returns an error if
// the resolved string still contains an unresolved {name} placeholder, so
// a typo in configuration fails before any side effect.
func Resolve(s string, v Vars) (string, error) {
	r := strings.NewReplacer(
		"{run_id}", v.RunID,
		"{phase}", v.Phase,
		"{task}", v.Task,
	)
	out := r.Replace(s)

	if name, ok := unresolvedPlaceholder(out); ok {
		return "", fmt.Errorf("unknown template placeholder {%s} in %q", name, s)
	}
	return out, nil
}

// MustNotContain verifies that s has no placeholders at all. Used for
// fields that are never templated, such as runner names.
func MustNotContain(s string) error {
	if name, ok := unresolvedPlaceholder(s); ok {
		return fmt.Errorf("unexpected placeholder {%s} in %q", name, s)
	}
	return nil
}

// unresolvedPlaceholder scans for a {name} sequence and returns the first
// placeholder name found. Braces without a plausible name (empty, or
// containing whitespace/newlines) are left alone so shell snippets with
// literal braces do not false-positive.
func unresolvedPlaceholder(s string) (string, bool) {
	for i := 0; i < len(s); i++ {
		if s[i] != '{' {
			continue
		}
		end := strings.IndexByte(s[i:], '}')
		if end < 0 {
			return "", false
		}
		name := s[i+1 : i+end]
		if isPlaceholderName(name) {
			return name, true
		}
		i += end
	}
	return "", false
}

func isPlaceholderName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		ok := r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		if !ok {
			return false
		}
	}
	return true
}
