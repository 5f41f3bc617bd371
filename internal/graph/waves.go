package graph

import (
	"fmt"
	"sort"

	"github.com/gammazero/toposort"
)

// Waves groups tasks into dependency waves: wave 0 has no dependencies,
// wave n+1 depends only on earlier waves. Used by the plan command to
// explain execution order; the scheduler itself never consults this and
// discovers unsatisfiable graphs at runtime via the no-progress guard.
func Waves(tasks []Task) ([][]string, error) {
	byName := make(map[string]Task, len(tasks))
	var edges []toposort.Edge
	for _, task := range tasks {
		byName[task.Name] = task
		if len(task.DependsOn) == 0 {
			edges = append(edges, toposort.Edge{nil, task.Name})
			continue
		}
		for _, dep := range task.DependsOn {
			edges = append(edges, toposort.Edge{dep, task.Name})
		}
	}

	if _, err := toposort.Toposort(edges); err != nil {
		return nil, fmt.Errorf("task graph contains a cycle: %w", err)
	}

	depth := make(map[string]int, len(tasks))
	var depthOf func(name string) int
	depthOf = func(name string) int {
		if d, ok := depth[name]; ok {
			return d
		}
		max := 0
		for _, dep := range byName[name].DependsOn {
			if d := depthOf(dep) + 1; d > max {
				max = d
			}
		}
		depth[name] = max
		return max
	}

	maxDepth := 0
	for _, task := range tasks {
		if d := depthOf(task.Name); d > maxDepth {
			maxDepth = d
		}
	}

	waves := make([][]string, maxDepth+1)
	for _, task := range tasks {
		d := depth[task.Name]
		waves[d] = append(waves[d], task.Name)
	}
	for _, wave := range waves {
		sort.Strings(wave)
	}
	return waves, nil
}
