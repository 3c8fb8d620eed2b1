package scheduler

import (
	"fmt"
	"maps"
	"time"
)

// TaskStatus represents the current state of a task.
type TaskStatus int

const (
	TaskPending   TaskStatus = iota // Waiting for dependencies
	TaskRunning                     // Currently executing
	TaskCompleted                   // Finished successfully
	TaskFailed                      // Finished with error
	TaskSkipped                     // Reserved; never assigned by the engine today
)

var taskStatusNames = map[TaskStatus]string{
	TaskPending:   "pending",
	TaskRunning:   "running",
	TaskCompleted: "completed",
	TaskFailed:    "failed",
	TaskSkipped:   "skipped",
}

func (s TaskStatus) String() string {
	if name, ok := taskStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("TaskStatus(%d)", int(s))
}

// MarshalText encodes the status as its lowercase name.
func (s TaskStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a lowercase status name.
func (s *TaskStatus) UnmarshalText(text []byte) error {
	parsed, err := ParseTaskStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseTaskStatus converts a status name back into a TaskStatus.
func ParseTaskStatus(name string) (TaskStatus, error) {
	for status, n := range taskStatusNames {
		if n == name {
			return status, nil
		}
	}
	return TaskPending, fmt.Errorf("unknown task status %q", name)
}

// ContextUpdateKey is the task context entry holding the global-context directive:
// a mapping of global key -> result field name, applied after the task succeeds.
const ContextUpdateKey = "update_global_context"

// DependencyContextPrefix prefixes the context key under which a dependency's result
// is passed to its dependents.
const DependencyContextPrefix = "dependency_"

// TaskDefinition is the caller-supplied description of a task.
type TaskDefinition struct {
	ID           string         `json:"id,omitempty" yaml:"id,omitempty"`
	Name         string         `json:"name" yaml:"name"`
	Executor     string         `json:"executor" yaml:"executor"`
	Prompt       string         `json:"prompt" yaml:"prompt"`
	Dependencies []string       `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	Context      map[string]any `json:"context,omitempty" yaml:"context,omitempty"`
}

// Task represents a unit of work inside a Workflow.
type Task struct {
	ID           string         // Unique within its workflow
	Name         string         // Display label
	ExecutorRef  string         // Registry key resolved at dispatch time
	Prompt       string         // Work description passed to the executor
	Dependencies []string       // Task IDs that must complete first
	Context      map[string]any // Caller context, may carry update_global_context
	Status       TaskStatus
	Result       map[string]any // Executor result (set on completion, kept on reported failure)
	Error        string         // Failure description
	StartTime    time.Time
	EndTime      time.Time
}

// Duration returns EndTime-StartTime when both are set.
func (t *Task) Duration() (time.Duration, bool) {
	if t.StartTime.IsZero() || t.EndTime.IsZero() {
		return 0, false
	}
	return t.EndTime.Sub(t.StartTime), true
}

// contextUpdates extracts the update_global_context directive.
// Definitions decoded from JSON or YAML carry map[string]any; programmatic
// callers may use map[string]string. Non-string field names are ignored.
func (t *Task) contextUpdates() map[string]string {
	raw, ok := t.Context[ContextUpdateKey]
	if !ok {
		return nil
	}

	updates := make(map[string]string)
	switch v := raw.(type) {
	case map[string]string:
		maps.Copy(updates, v)
	case map[string]any:
		for key, field := range v {
			if name, ok := field.(string); ok {
				updates[key] = name
			}
		}
	}
	return updates
}

func cloneTask(task *Task) *Task {
	if task == nil {
		return nil
	}

	cp := *task
	if task.Dependencies != nil {
		cp.Dependencies = append([]string(nil), task.Dependencies...)
	}
	cp.Context = maps.Clone(task.Context)
	cp.Result = maps.Clone(task.Result)
	return &cp
}
