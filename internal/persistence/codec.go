package persistence

import (
	"encoding/json"
	"fmt"

	"github.com/aristath/taskflow/internal/scheduler"
)

// Result maps and the global context are stored as JSON documents in both backends.

func marshalMap(m map[string]any) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	return data, nil
}

func unmarshalMap(data []byte) (map[string]any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}
	return m, nil
}

// countTasks recomputes aggregate counters from the per-task rows.
func countTasks(out *scheduler.Outcome) {
	out.TotalTasks = len(out.Results)
	out.CompletedTasks, out.FailedTasks = 0, 0
	for _, r := range out.Results {
		switch r.Status {
		case scheduler.TaskCompleted:
			out.CompletedTasks++
		case scheduler.TaskFailed:
			out.FailedTasks++
		}
	}
}

// nullable unwraps optional columns so drivers see either NULL or a plain value.
func nullable[T any](v *T) any {
	if v == nil {
		return nil
	}
	return *v
}
