package report

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/aristath/taskflow/internal/events"
	"github.com/aristath/taskflow/internal/scheduler"
)

func ptr[T any](v T) *T { return &v }

func TestProgressBar(t *testing.T) {
	if got := ProgressBar(0, 0, 0, 0); got != "" {
		t.Errorf("empty workflow should render no bar, got %q", got)
	}

	bar := ProgressBar(4, 2, 1, 1)
	if !strings.HasSuffix(bar, "2/4") {
		t.Errorf("bar should end with counts, got %q", bar)
	}
	for _, glyph := range []string{"=", "!", "-"} {
		if !strings.Contains(bar, glyph) {
			t.Errorf("bar %q missing %q segment", bar, glyph)
		}
	}
	if strings.Contains(bar, ".") {
		t.Errorf("no pending tasks, bar %q should have no pending segment", bar)
	}
}

func TestOutcome(t *testing.T) {
	out := &scheduler.Outcome{
		WorkflowID:      "wf-1",
		Name:            "release",
		Description:     "build and publish",
		Status:          scheduler.WorkflowFailed,
		Error:           "failed tasks: Publish",
		DurationSeconds: ptr(2.5),
		CompletedTasks:  1,
		FailedTasks:     1,
		TotalTasks:      2,
		Results: []scheduler.TaskSummary{
			{TaskID: "build", TaskName: "Build", Executor: "shell", Status: scheduler.TaskCompleted, DurationSeconds: ptr(1.25)},
			{TaskID: "publish", TaskName: "Publish", Executor: "shell", Status: scheduler.TaskFailed, Error: "exit status 1"},
		},
	}

	var buf bytes.Buffer
	Outcome(&buf, out)
	got := buf.String()

	for _, want := range []string{
		"Workflow release",
		"ID:       wf-1",
		"About:    build and publish",
		"failed",
		"Duration: 2.5s",
		"1/2",
		"TASK",
		"build",
		"1.25s",
		"workflow: failed tasks: Publish",
		"publish: exit status 1",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("report missing %q:\n%s", want, got)
		}
	}
}

func TestSummaries(t *testing.T) {
	var empty bytes.Buffer
	Summaries(&empty, nil)
	if !strings.Contains(empty.String(), "No workflows recorded.") {
		t.Errorf("unexpected empty listing: %q", empty.String())
	}

	var buf bytes.Buffer
	Summaries(&buf, []scheduler.Summary{
		{ID: "wf-2", Name: "nightly", Status: scheduler.WorkflowCompleted, TaskCount: 3, CreatedAt: time.Now()},
		{ID: "wf-1", Name: "release", Status: scheduler.WorkflowRunning, TaskCount: 2, CreatedAt: time.Now()},
	})
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected header, rule and two rows, got %d lines:\n%s", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[2], "wf-2") || !strings.Contains(lines[3], "release") {
		t.Errorf("rows out of order:\n%s", buf.String())
	}
}

func TestWatch(t *testing.T) {
	ch := make(chan events.Event, 8)
	ch <- events.TaskStartedEvent{ID: "a", Executor: "shell"}
	ch <- events.TaskCompletedEvent{ID: "a", Duration: 1500 * time.Millisecond}
	ch <- events.TaskFailedEvent{ID: "b", Err: "boom"}
	ch <- events.WorkflowProgressEvent{Total: 2, Completed: 1, Failed: 1}
	ch <- events.WorkflowFinishedEvent{Status: "failed"}
	ch <- events.TaskStartedEvent{ID: "late"}

	var buf bytes.Buffer
	Watch(context.Background(), &buf, ch)
	got := buf.String()

	for _, want := range []string{"a (shell)", "a in 1.5s", "b: boom", "1/2"} {
		if !strings.Contains(got, want) {
			t.Errorf("watch output missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "late") {
		t.Error("Watch should stop at the workflow finished event")
	}
}
