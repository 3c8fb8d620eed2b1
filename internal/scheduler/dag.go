package scheduler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gammazero/toposort"
)

// ValidateDefinitions checks a set of task definitions without creating a workflow.
// Returns the task IDs in a valid execution order, or an error describing
// duplicate IDs, missing fields, dependencies on unknown tasks, or a cycle.
// Definitions without an ID cannot be referenced and are ordered by position.
func ValidateDefinitions(defs []TaskDefinition) ([]string, error) {
	seen := make(map[string]bool, len(defs))
	for i, def := range defs {
		if err := checkDefinition(i, def); err != nil {
			return nil, err
		}
		if def.ID == "" {
			continue
		}
		if seen[def.ID] {
			return nil, fmt.Errorf("duplicate task id %q", def.ID)
		}
		seen[def.ID] = true
	}

	tasks := make([]*Task, 0, len(defs))
	for i, def := range defs {
		id := def.ID
		if id == "" {
			id = placeholderID(i, seen)
			seen[id] = true
		}
		tasks = append(tasks, &Task{ID: id, Dependencies: def.Dependencies})
	}
	return topologicalOrder(tasks)
}

// placeholderID labels an unnamed definition by position, avoiding every ID in taken.
func placeholderID(pos int, taken map[string]bool) string {
	id := fmt.Sprintf("#%d", pos)
	for n := 1; taken[id]; n++ {
		id = fmt.Sprintf("#%d~%d", pos, n)
	}
	return id
}

// Diagnose explains why pending tasks can never become ready.
// The returned error wraps ErrDeadlock and names dangling dependencies
// or the cycle found by the topological sort. Returns nil if the graph is sound.
func Diagnose(tasks []*Task) error {
	if _, err := topologicalOrder(tasks); err != nil {
		return fmt.Errorf("%w: %v", ErrDeadlock, err)
	}
	return nil
}

// topologicalOrder verifies every dependency exists, then sorts the graph.
func topologicalOrder(tasks []*Task) ([]string, error) {
	known := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		known[t.ID] = true
	}

	var dangling []string
	for _, t := range tasks {
		for _, depID := range t.Dependencies {
			if !known[depID] {
				dangling = append(dangling, fmt.Sprintf("%s -> %s", t.ID, depID))
			}
		}
	}
	if len(dangling) > 0 {
		sort.Strings(dangling)
		return nil, fmt.Errorf("dependencies on non-existent tasks: %s", strings.Join(dangling, ", "))
	}

	// Edge (dep, task) means dep must come before task; a nil source keeps
	// tasks without dependencies in the result.
	var edges []toposort.Edge
	for _, t := range tasks {
		if len(t.Dependencies) == 0 {
			edges = append(edges, toposort.Edge{nil, t.ID})
			continue
		}
		for _, depID := range t.Dependencies {
			edges = append(edges, toposort.Edge{depID, t.ID})
		}
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		return nil, fmt.Errorf("dependency cycle: %w", err)
	}

	order := make([]string, 0, len(tasks))
	for _, id := range sorted {
		if id != nil {
			order = append(order, id.(string))
		}
	}
	return order, nil
}

func checkDefinition(pos int, def TaskDefinition) error {
	label := def.ID
	if label == "" {
		label = fmt.Sprintf("#%d", pos)
	}
	switch {
	case def.Name == "":
		return fmt.Errorf("task %s: name is required", label)
	case def.Executor == "":
		return fmt.Errorf("task %s: executor is required", label)
	}
	return nil
}
