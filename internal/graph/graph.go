// Package graph holds the in-memory task model: normalization of raw
// configuration into an ordered, referentially valid task list, phase
// selection, and wave computation for plan output.
package graph

import (
	"fmt"
	"strings"

	"github.com/stagehand-dev/stagehand/internal/config"
	"github.com/stagehand-dev/stagehand/internal/tmpl"
)

// Phase is a named stage of a run selecting a disjoint subset of tasks.
type Phase string

const (
	PhaseDiscovery Phase = "discovery"
	PhaseMain      Phase = "main"
	PhasePost      Phase = "post"
	PhaseLegacy    Phase = "legacy"
)

// ValidPhase reports whether s names a known phase.
func ValidPhase(s string) bool {
	switch Phase(s) {
	case PhaseDiscovery, PhaseMain, PhaseLegacy, PhasePost:
		return true
	}
	return false
}

// Phases lists all phases in coordinator order.
func Phases() []Phase {
	return []Phase{PhaseDiscovery, PhaseMain, PhasePost, PhaseLegacy}
}

// Task is a normalized task definition. Template-valued fields still
// contain their placeholders; resolution happens at selection and spawn
// time against the run's {run_id, phase, task} variables.
type Task struct {
	Name        string
	DependsOn   []string
	Phase       Phase
	Manual      bool
	Interactive bool
	Runner      string
	Worktree    string
	Branch      string
	Prompt      string
	Log         string
	PauseMarker string
}

// Normalize validates raw task definitions and returns them in input
// order. Input order matters: it is the tie-break for the scheduler's
// per-tick scan.
//
// Rejected: missing or duplicate names, missing worktree or prompt,
// unknown phase values, and dependencies naming tasks absent from the
// configuration. Dependency lists and the manual flag are type-checked
// by the config decoder; Normalize enforces the semantic rules.
func Normalize(raw []config.RawTask) ([]Task, error) {
	byName := make(map[string]struct{}, len(raw))
	ordered := make([]Task, 0, len(raw))

	for _, rt := range raw {
		if rt.Name == "" {
			return nil, fmt.Errorf("each task must have a non-empty name")
		}
		if _, dup := byName[rt.Name]; dup {
			return nil, fmt.Errorf("duplicate task name %q", rt.Name)
		}
		if rt.Worktree == "" {
			return nil, fmt.Errorf("task %q missing required field worktree", rt.Name)
		}
		if rt.Prompt == "" {
			return nil, fmt.Errorf("task %q missing required field prompt", rt.Name)
		}
		if !ValidPhase(rt.Phase) {
			return nil, fmt.Errorf("task %q: invalid phase %q", rt.Name, rt.Phase)
		}
		// Runner names select a configuration entry verbatim.
		if err := tmpl.MustNotContain(rt.Runner); err != nil {
			return nil, fmt.Errorf("task %q runner: %w", rt.Name, err)
		}

		manual := false
		if rt.Manual != nil {
			manual = *rt.Manual
		}

		byName[rt.Name] = struct{}{}
		ordered = append(ordered, Task{
			Name:        rt.Name,
			DependsOn:   append([]string(nil), rt.DependsOn...),
			Phase:       Phase(rt.Phase),
			Manual:      manual,
			Interactive: rt.Interactive,
			Runner:      rt.Runner,
			Worktree:    rt.Worktree,
			Branch:      rt.Branch,
			Prompt:      rt.Prompt,
			Log:         rt.Log,
			PauseMarker: rt.PauseMarker,
		})
	}

	for _, task := range ordered {
		for _, dep := range task.DependsOn {
			if _, ok := byName[dep]; !ok {
				return nil, fmt.Errorf("task %q depends on unknown task %q", task.Name, dep)
			}
		}
	}

	return ordered, nil
}

// Select filters tasks to the requested phase, dropping manually gated
// tasks unless includeManual is set. A surviving task whose dependency
// was filtered out is a configuration error, not a silent skip: the
// scheduler would otherwise wait forever on a task that can never run.
func Select(tasks []Task, phase Phase, includeManual bool) ([]Task, error) {
	selected := make([]Task, 0, len(tasks))
	names := make(map[string]struct{})
	for _, task := range tasks {
		if task.Phase != phase {
			continue
		}
		if task.Manual && !includeManual {
			continue
		}
		selected = append(selected, task)
		names[task.Name] = struct{}{}
	}

	for _, task := range selected {
		var missing []string
		for _, dep := range task.DependsOn {
			if _, ok := names[dep]; !ok {
				missing = append(missing, dep)
			}
		}
		if len(missing) > 0 {
			return nil, fmt.Errorf("task %q depends on excluded tasks: %s", task.Name, strings.Join(missing, ", "))
		}
	}

	return selected, nil
}
