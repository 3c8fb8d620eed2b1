package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aristath/taskflow/internal/events"
	"github.com/aristath/taskflow/internal/executor"
)

// runTask executes a single ready task and records its outcome on the workflow.
func (e *Engine) runTask(ctx context.Context, wf *Workflow, task *Task, logger *slog.Logger) {
	logger = logger.With("task_id", task.ID, "task", task.Name, "executor", task.ExecutorRef)

	started := e.cfg.Clock()
	if err := wf.markRunning(task.ID, started); err != nil {
		logger.Error("cannot start task", "error", err)
		return
	}
	logger.Debug("task started")
	e.publish(events.TaskStartedEvent{
		Workflow:  wf.id,
		ID:        task.ID,
		Name:      task.Name,
		Executor:  task.ExecutorRef,
		Timestamp: started,
	})

	result, err := e.invoke(ctx, wf, task)
	now := e.cfg.Clock()

	if err != nil {
		if markErr := wf.fail(task.ID, err.Error(), now); markErr != nil {
			logger.Error("cannot record task failure", "error", markErr)
		}
		logger.Error("task failed", "error", err)
		e.publish(events.TaskFailedEvent{
			Workflow:  wf.id,
			ID:        task.ID,
			Executor:  task.ExecutorRef,
			Err:       err.Error(),
			Duration:  now.Sub(started),
			Timestamp: now,
		})
		return
	}

	if markErr := wf.complete(task.ID, result, now); markErr != nil {
		logger.Error("cannot record task completion", "error", markErr)
		return
	}
	logger.Info("task completed", "duration", now.Sub(started))
	e.publish(events.TaskCompletedEvent{
		Workflow:  wf.id,
		ID:        task.ID,
		Executor:  task.ExecutorRef,
		Duration:  now.Sub(started),
		Timestamp: now,
	})
}

type invocation struct {
	result executor.Result
	err    error
}

// invoke resolves the task's executor and calls it with the assembled context.
// Any failure mode (unknown executor, raised error, panic, timeout, missing or
// unsuccessful result) comes back as a non-nil error. A reported failure keeps
// its result alongside the error.
func (e *Engine) invoke(ctx context.Context, wf *Workflow, task *Task) (executor.Result, error) {
	ex, ok := e.registry.Resolve(task.ExecutorRef)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrExecutorNotFound, task.ExecutorRef)
	}

	input := wf.executionContext(task.ID)

	callCtx := ctx
	if e.cfg.TaskTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.cfg.TaskTimeout)
		defer cancel()
	}

	// Buffered so an executor that ignores cancellation can still finish
	// without blocking once we stop waiting for it.
	done := make(chan invocation, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- invocation{err: fmt.Errorf("%w: panic: %v", ErrExecutorFailure, r)}
			}
		}()
		res, err := ex.Execute(callCtx, task.Prompt, input)
		done <- invocation{result: res, err: err}
	}()

	var inv invocation
	select {
	case inv = <-done:
	case <-callCtx.Done():
		inv = invocation{err: callCtx.Err()}
	}

	switch {
	case inv.err != nil:
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w after %s", ErrTaskTimeout, e.cfg.TaskTimeout)
		}
		if errors.Is(inv.err, ErrExecutorFailure) {
			return nil, inv.err
		}
		return nil, fmt.Errorf("%w: %w", ErrExecutorFailure, inv.err)
	case inv.result == nil:
		return nil, fmt.Errorf("%w: %w", ErrExecutorFailure, executor.ErrNoResult)
	case !inv.result.Success():
		msg := inv.result.ErrorMessage()
		if msg == "" {
			msg = "executor reported failure"
		}
		return inv.result, fmt.Errorf("%w: %s", ErrExecutorFailure, msg)
	}
	return inv.result, nil
}
