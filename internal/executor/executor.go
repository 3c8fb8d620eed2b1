package executor

import (
	"context"
	"errors"
	"fmt"
)

// ErrNoResult is returned when an executor finishes without an error but also without a result.
var ErrNoResult = errors.New("executor returned no result")

// Result is the map returned by an executor. It carries at least a boolean "success" field;
// any other top-level field may be referenced by a task's update_global_context directive.
type Result map[string]any

// Success reports whether the executor marked the result as successful.
func (r Result) Success() bool {
	ok, _ := r["success"].(bool)
	return ok
}

// ErrorMessage returns the "error" field when the executor provided one as a string.
func (r Result) ErrorMessage() string {
	msg, _ := r["error"].(string)
	return msg
}

// Executor defines the capability every task executor must implement.
type Executor interface {
	// Name is the key the executor is registered under.
	Name() string

	// Execute performs the work described by prompt using the provided context.
	Execute(ctx context.Context, prompt string, input map[string]any) (Result, error)
}

// ExecuteFunc is the signature wrapped by Func.
type ExecuteFunc func(ctx context.Context, prompt string, input map[string]any) (Result, error)

type funcExecutor struct {
	name string
	fn   ExecuteFunc
}

// Func adapts a plain function into a named Executor.
func Func(name string, fn ExecuteFunc) Executor {
	return &funcExecutor{name: name, fn: fn}
}

func (f *funcExecutor) Name() string { return f.name }

func (f *funcExecutor) Execute(ctx context.Context, prompt string, input map[string]any) (Result, error) {
	if f.fn == nil {
		return nil, fmt.Errorf("executor %q has no function", f.name)
	}
	return f.fn(ctx, prompt, input)
}
