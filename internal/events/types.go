package events

import (
	"time"
)

// Event is the base interface for all events.
type Event interface {
	EventType() string
	WorkflowID() string
}

// Topic constants
const (
	TopicTask     = "task"
	TopicWorkflow = "workflow"
)

// Event type constants
const (
	EventTypeTaskStarted       = "task.started"
	EventTypeTaskCompleted     = "task.completed"
	EventTypeTaskFailed        = "task.failed"
	EventTypeWorkflowStarted   = "workflow.started"
	EventTypeWorkflowProgress  = "workflow.progress"
	EventTypeWorkflowFinished  = "workflow.finished"
	EventTypeWorkflowCancelled = "workflow.cancelled"
)

// TaskStartedEvent is published when a task is dispatched to its executor.
type TaskStartedEvent struct {
	Workflow  string    `json:"workflow_id"`
	ID        string    `json:"task_id"`
	Name      string    `json:"task_name"`
	Executor  string    `json:"executor"`
	Timestamp time.Time `json:"timestamp"`
}

func (e TaskStartedEvent) EventType() string  { return EventTypeTaskStarted }
func (e TaskStartedEvent) WorkflowID() string { return e.Workflow }

// TaskCompletedEvent is published when a task completes successfully.
type TaskCompletedEvent struct {
	Workflow  string        `json:"workflow_id"`
	ID        string        `json:"task_id"`
	Executor  string        `json:"executor"`
	Duration  time.Duration `json:"duration"`
	Timestamp time.Time     `json:"timestamp"`
}

func (e TaskCompletedEvent) EventType() string  { return EventTypeTaskCompleted }
func (e TaskCompletedEvent) WorkflowID() string { return e.Workflow }

// TaskFailedEvent is published when a task fails.
type TaskFailedEvent struct {
	Workflow  string        `json:"workflow_id"`
	ID        string        `json:"task_id"`
	Executor  string        `json:"executor"`
	Err       string        `json:"error"`
	Duration  time.Duration `json:"duration"`
	Timestamp time.Time     `json:"timestamp"`
}

func (e TaskFailedEvent) EventType() string  { return EventTypeTaskFailed }
func (e TaskFailedEvent) WorkflowID() string { return e.Workflow }

// WorkflowStartedEvent is published when execution of a workflow begins.
type WorkflowStartedEvent struct {
	ID        string    `json:"workflow_id"`
	Name      string    `json:"name"`
	Total     int       `json:"total_tasks"`
	Timestamp time.Time `json:"timestamp"`
}

func (e WorkflowStartedEvent) EventType() string  { return EventTypeWorkflowStarted }
func (e WorkflowStartedEvent) WorkflowID() string { return e.ID }

// WorkflowProgressEvent is published after every dispatch batch.
type WorkflowProgressEvent struct {
	ID        string    `json:"workflow_id"`
	Total     int       `json:"total"`
	Completed int       `json:"completed"`
	Running   int       `json:"running"`
	Failed    int       `json:"failed"`
	Pending   int       `json:"pending"`
	Timestamp time.Time `json:"timestamp"`
}

func (e WorkflowProgressEvent) EventType() string  { return EventTypeWorkflowProgress }
func (e WorkflowProgressEvent) WorkflowID() string { return e.ID }

// WorkflowFinishedEvent is published when execute reaches a terminal status.
type WorkflowFinishedEvent struct {
	ID        string        `json:"workflow_id"`
	Status    string        `json:"status"`
	Err       string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration"`
	Timestamp time.Time     `json:"timestamp"`
}

func (e WorkflowFinishedEvent) EventType() string  { return EventTypeWorkflowFinished }
func (e WorkflowFinishedEvent) WorkflowID() string { return e.ID }

// WorkflowCancelledEvent is published when an active workflow is cancelled.
type WorkflowCancelledEvent struct {
	ID        string    `json:"workflow_id"`
	Timestamp time.Time `json:"timestamp"`
}

func (e WorkflowCancelledEvent) EventType() string  { return EventTypeWorkflowCancelled }
func (e WorkflowCancelledEvent) WorkflowID() string { return e.ID }
