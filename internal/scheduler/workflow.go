package scheduler

import (
	"fmt"
	"maps"
	"sync"
	"time"
)

// WorkflowStatus represents the lifecycle state of a workflow.
type WorkflowStatus int

const (
	WorkflowPending WorkflowStatus = iota
	WorkflowRunning
	WorkflowCompleted
	WorkflowFailed
	WorkflowCancelled
)

var workflowStatusNames = map[WorkflowStatus]string{
	WorkflowPending:   "pending",
	WorkflowRunning:   "running",
	WorkflowCompleted: "completed",
	WorkflowFailed:    "failed",
	WorkflowCancelled: "cancelled",
}

func (s WorkflowStatus) String() string {
	if name, ok := workflowStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("WorkflowStatus(%d)", int(s))
}

// IsTerminal reports whether no further transitions are possible.
func (s WorkflowStatus) IsTerminal() bool {
	return s == WorkflowCompleted || s == WorkflowFailed || s == WorkflowCancelled
}

// MarshalText encodes the status as its lowercase name.
func (s WorkflowStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a lowercase status name.
func (s *WorkflowStatus) UnmarshalText(text []byte) error {
	parsed, err := ParseWorkflowStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseWorkflowStatus converts a status name back into a WorkflowStatus.
func ParseWorkflowStatus(name string) (WorkflowStatus, error) {
	for status, n := range workflowStatusNames {
		if n == name {
			return status, nil
		}
	}
	return WorkflowPending, fmt.Errorf("unknown workflow status %q", name)
}

// Workflow is an ordered collection of tasks plus a shared global context.
// All access goes through its methods; tasks handed out are copies.
type Workflow struct {
	mu            sync.RWMutex
	id            string
	name          string
	description   string
	tasks         []*Task          // Definition order
	index         map[string]*Task // Tasks indexed by ID
	globalContext map[string]any
	status        WorkflowStatus
	err           string
	createdAt     time.Time
	startTime     time.Time
	endTime       time.Time
}

func newWorkflow(id, name, description string, tasks []*Task, createdAt time.Time) *Workflow {
	index := make(map[string]*Task, len(tasks))
	for _, t := range tasks {
		index[t.ID] = t
	}
	return &Workflow{
		id:            id,
		name:          name,
		description:   description,
		tasks:         tasks,
		index:         index,
		globalContext: make(map[string]any),
		status:        WorkflowPending,
		createdAt:     createdAt,
	}
}

func (w *Workflow) ID() string          { return w.id }
func (w *Workflow) Name() string        { return w.name }
func (w *Workflow) Description() string { return w.description }

// Status returns the current workflow status.
func (w *Workflow) Status() WorkflowStatus {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.status
}

// Err returns the workflow-level failure description, if any.
func (w *Workflow) Err() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.err
}

// Task returns a copy of the task with the given ID.
func (w *Workflow) Task(id string) (*Task, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	task, ok := w.index[id]
	if !ok {
		return nil, false
	}
	return cloneTask(task), true
}

// Tasks returns copies of all tasks in definition order.
func (w *Workflow) Tasks() []*Task {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.filter(func(*Task) bool { return true })
}

// ReadyTasks returns pending tasks whose dependencies are all completed, in definition order.
// A dependency on an unknown task ID is never satisfied.
func (w *Workflow) ReadyTasks() []*Task {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.filter(w.isReady)
}

// CompletedTasks returns copies of completed tasks.
func (w *Workflow) CompletedTasks() []*Task {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.filter(hasStatus(TaskCompleted))
}

// FailedTasks returns copies of failed tasks.
func (w *Workflow) FailedTasks() []*Task {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.filter(hasStatus(TaskFailed))
}

// GlobalContext returns a copy of the shared context.
func (w *Workflow) GlobalContext() map[string]any {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return maps.Clone(w.globalContext)
}

// Outcome builds a structured snapshot of the workflow.
func (w *Workflow) Outcome() *Outcome {
	w.mu.RLock()
	defer w.mu.RUnlock()

	out := &Outcome{
		WorkflowID:      w.id,
		Name:            w.name,
		Description:     w.description,
		Status:          w.status,
		Error:           w.err,
		CreatedAt:       w.createdAt,
		StartTime:       timePtr(w.startTime),
		EndTime:         timePtr(w.endTime),
		DurationSeconds: secondsBetween(w.startTime, w.endTime),
		TotalTasks:      len(w.tasks),
		GlobalContext:   maps.Clone(w.globalContext),
		Results:         make([]TaskSummary, 0, len(w.tasks)),
	}
	for _, t := range w.tasks {
		switch t.Status {
		case TaskCompleted:
			out.CompletedTasks++
		case TaskFailed:
			out.FailedTasks++
		}
		out.Results = append(out.Results, summarizeTask(t))
	}
	return out
}

// taskCounts holds the number of tasks per status.
type taskCounts struct {
	pending, running, completed, failed int
}

func (w *Workflow) counts() taskCounts {
	w.mu.RLock()
	defer w.mu.RUnlock()

	var c taskCounts
	for _, t := range w.tasks {
		switch t.Status {
		case TaskPending:
			c.pending++
		case TaskRunning:
			c.running++
		case TaskCompleted:
			c.completed++
		case TaskFailed:
			c.failed++
		}
	}
	return c
}

// filter must be called with w.mu held.
func (w *Workflow) filter(keep func(*Task) bool) []*Task {
	out := []*Task{}
	for _, t := range w.tasks {
		if keep(t) {
			out = append(out, cloneTask(t))
		}
	}
	return out
}

// isReady must be called with w.mu held.
func (w *Workflow) isReady(t *Task) bool {
	if t.Status != TaskPending {
		return false
	}
	for _, depID := range t.Dependencies {
		dep, ok := w.index[depID]
		if !ok || dep.Status != TaskCompleted {
			return false
		}
	}
	return true
}

func hasStatus(status TaskStatus) func(*Task) bool {
	return func(t *Task) bool { return t.Status == status }
}

// begin moves a pending workflow to running.
func (w *Workflow) begin(now time.Time) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.status != WorkflowPending {
		return fmt.Errorf("%w: %s is %s", ErrWorkflowNotPending, w.id, w.status)
	}
	w.status = WorkflowRunning
	w.startTime = now
	return nil
}

// markRunning moves a pending task to running.
func (w *Workflow) markRunning(taskID string, now time.Time) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	task, ok := w.index[taskID]
	if !ok {
		return fmt.Errorf("task %q not found", taskID)
	}
	if task.Status != TaskPending {
		return fmt.Errorf("task %q is %s, not pending", taskID, task.Status)
	}
	task.Status = TaskRunning
	task.StartTime = now
	return nil
}

// executionContext builds the context handed to the executor: the task's own
// context, overlaid by the global context, plus dependency_<id> entries for
// every dependency that produced a result.
func (w *Workflow) executionContext(taskID string) map[string]any {
	w.mu.RLock()
	defer w.mu.RUnlock()

	task, ok := w.index[taskID]
	if !ok {
		return map[string]any{}
	}

	input := make(map[string]any, len(task.Context)+len(w.globalContext)+len(task.Dependencies))
	maps.Copy(input, task.Context)
	maps.Copy(input, w.globalContext)
	for _, depID := range task.Dependencies {
		if dep, ok := w.index[depID]; ok && dep.Result != nil {
			input[DependencyContextPrefix+depID] = maps.Clone(dep.Result)
		}
	}
	return input
}

// complete records a successful result and applies the task's
// update_global_context directive. Result fields named by the directive that
// are absent from the result are skipped.
func (w *Workflow) complete(taskID string, result map[string]any, now time.Time) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	task, ok := w.index[taskID]
	if !ok {
		return fmt.Errorf("task %q not found", taskID)
	}
	if task.Status != TaskRunning {
		return fmt.Errorf("task %q is %s, not running", taskID, task.Status)
	}

	task.Result = result
	for globalKey, field := range task.contextUpdates() {
		if value, ok := result[field]; ok {
			w.globalContext[globalKey] = value
		}
	}
	task.Status = TaskCompleted
	task.EndTime = now
	return nil
}

// fail records a task failure. Failed tasks never carry a result.
func (w *Workflow) fail(taskID string, msg string, now time.Time) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	task, ok := w.index[taskID]
	if !ok {
		return fmt.Errorf("task %q not found", taskID)
	}
	if task.Status != TaskRunning {
		return fmt.Errorf("task %q is %s, not running", taskID, task.Status)
	}

	task.Result = nil
	task.Error = msg
	task.Status = TaskFailed
	task.EndTime = now
	return nil
}

// abort ends a running workflow as Failed with the given reason.
func (w *Workflow) abort(reason string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.status == WorkflowRunning {
		w.status = WorkflowFailed
		w.err = reason
	}
}

// finish settles the final status of a workflow still marked running:
// Completed only if every task completed, Failed otherwise.
func (w *Workflow) finish(now time.Time) WorkflowStatus {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.status == WorkflowRunning {
		w.status = WorkflowCompleted
		for _, t := range w.tasks {
			if t.Status != TaskCompleted {
				w.status = WorkflowFailed
				break
			}
		}
	}
	if w.endTime.IsZero() {
		w.endTime = now
	}
	return w.status
}

// cancel marks a non-terminal workflow as cancelled.
func (w *Workflow) cancel(reason string, now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.status.IsTerminal() {
		return false
	}
	w.status = WorkflowCancelled
	w.err = reason
	w.endTime = now
	return true
}
