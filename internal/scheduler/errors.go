package scheduler

import "errors"

var (
	// ErrWorkflowNotFound is returned when a workflow id is unknown to the engine
	// (or, for Execute and Cancel, no longer active).
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrWorkflowNotPending is returned when Execute is called on a workflow that already started.
	ErrWorkflowNotPending = errors.New("workflow is not pending")

	// ErrExecutorNotFound marks a task whose executor reference does not resolve.
	ErrExecutorNotFound = errors.New("executor not found")

	// ErrExecutorFailure marks a task whose executor raised or reported a failure.
	ErrExecutorFailure = errors.New("executor failure")

	// ErrTaskTimeout marks a task whose executor exceeded the per-task timeout.
	ErrTaskTimeout = errors.New("task timed out")

	// ErrDeadlock marks a workflow left with pending tasks that can never become ready.
	ErrDeadlock = errors.New("unsatisfiable dependencies")
)
