package scheduler

import (
	"maps"
	"time"
)

// TaskSummary is the per-task entry of an Outcome.
type TaskSummary struct {
	TaskID          string         `json:"task_id"`
	TaskName        string         `json:"task_name"`
	Executor        string         `json:"executor"`
	Status          TaskStatus     `json:"status"`
	Result          map[string]any `json:"result"`
	Error           string         `json:"error"`
	DurationSeconds *float64       `json:"duration_seconds"`
}

// Outcome is the structured snapshot returned by Execute and Status.
type Outcome struct {
	WorkflowID      string         `json:"workflow_id"`
	Name            string         `json:"name"`
	Description     string         `json:"description"`
	Status          WorkflowStatus `json:"status"`
	Error           string         `json:"error,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	StartTime       *time.Time     `json:"start_time"`
	EndTime         *time.Time     `json:"end_time"`
	DurationSeconds *float64       `json:"duration_seconds"`
	CompletedTasks  int            `json:"completed_tasks"`
	FailedTasks     int            `json:"failed_tasks"`
	TotalTasks      int            `json:"total_tasks"`
	GlobalContext   map[string]any `json:"global_context"`
	Results         []TaskSummary  `json:"results"`
}

// Summary is the lightweight listing entry returned by List.
type Summary struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	Description     string         `json:"description"`
	Status          WorkflowStatus `json:"status"`
	CreatedAt       time.Time      `json:"created_at"`
	DurationSeconds *float64       `json:"duration_seconds"`
	TaskCount       int            `json:"task_count"`
}

// Summary derives the listing entry from an outcome.
func (o *Outcome) Summary() Summary {
	return Summary{
		ID:              o.WorkflowID,
		Name:            o.Name,
		Description:     o.Description,
		Status:          o.Status,
		CreatedAt:       o.CreatedAt,
		DurationSeconds: o.DurationSeconds,
		TaskCount:       o.TotalTasks,
	}
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func secondsBetween(start, end time.Time) *float64 {
	if start.IsZero() || end.IsZero() {
		return nil
	}
	s := end.Sub(start).Seconds()
	return &s
}

func summarizeTask(t *Task) TaskSummary {
	return TaskSummary{
		TaskID:          t.ID,
		TaskName:        t.Name,
		Executor:        t.ExecutorRef,
		Status:          t.Status,
		Result:          maps.Clone(t.Result),
		Error:           t.Error,
		DurationSeconds: secondsBetween(t.StartTime, t.EndTime),
	}
}
