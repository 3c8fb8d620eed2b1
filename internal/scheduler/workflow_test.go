package scheduler

import (
	"errors"
	"testing"
	"time"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// setupTestWorkflow creates a workflow with a small diamond graph:
// fetch -> (build, lint) -> report.
func setupTestWorkflow() *Workflow {
	tasks := []*Task{
		{ID: "fetch", Name: "Fetch", ExecutorRef: "x", Context: map[string]any{
			ContextUpdateKey: map[string]any{"repo_path": "path"},
		}},
		{ID: "build", Name: "Build", ExecutorRef: "x", Dependencies: []string{"fetch"}},
		{ID: "lint", Name: "Lint", ExecutorRef: "x", Dependencies: []string{"fetch"}},
		{ID: "report", Name: "Report", ExecutorRef: "x", Dependencies: []string{"build", "lint"},
			Context: map[string]any{"format": "md"}},
	}
	return newWorkflow("wf-1", "diamond", "test workflow", tasks, epoch)
}

func readyIDs(wf *Workflow) []string {
	var ids []string
	for _, t := range wf.ReadyTasks() {
		ids = append(ids, t.ID)
	}
	return ids
}

func TestWorkflow_ReadyTasksFollowDependencies(t *testing.T) {
	wf := setupTestWorkflow()
	if err := wf.begin(epoch); err != nil {
		t.Fatalf("begin: %v", err)
	}

	if got := readyIDs(wf); len(got) != 1 || got[0] != "fetch" {
		t.Fatalf("expected [fetch] ready, got %v", got)
	}

	_ = wf.markRunning("fetch", epoch)
	if got := readyIDs(wf); len(got) != 0 {
		t.Fatalf("running task must not be ready, got %v", got)
	}

	if err := wf.complete("fetch", map[string]any{"success": true, "path": "/src"}, epoch); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if got := readyIDs(wf); len(got) != 2 || got[0] != "build" || got[1] != "lint" {
		t.Fatalf("expected [build lint] ready in definition order, got %v", got)
	}

	_ = wf.markRunning("build", epoch)
	_ = wf.complete("build", map[string]any{"success": true}, epoch)
	if got := readyIDs(wf); len(got) != 1 || got[0] != "lint" {
		t.Fatalf("report must wait for lint, got %v", got)
	}
}

func TestWorkflow_ContextDirectiveAndDependencyResults(t *testing.T) {
	wf := setupTestWorkflow()
	_ = wf.begin(epoch)

	_ = wf.markRunning("fetch", epoch)
	_ = wf.complete("fetch", map[string]any{"success": true, "path": "/src"}, epoch)

	if got := wf.GlobalContext()["repo_path"]; got != "/src" {
		t.Fatalf("expected global repo_path=/src, got %v", got)
	}

	input := wf.executionContext("build")
	if input["repo_path"] != "/src" {
		t.Errorf("expected global context in input, got %v", input)
	}
	dep, ok := input["dependency_fetch"].(map[string]any)
	if !ok || dep["path"] != "/src" {
		t.Errorf("expected dependency_fetch result, got %v", input["dependency_fetch"])
	}

	// Global context overrides task context on collision.
	wf.globalContext["format"] = "html"
	if got := wf.executionContext("report")["format"]; got != "html" {
		t.Errorf("expected global context to win, got %v", got)
	}
}

func TestWorkflow_DirectiveSkipsMissingFields(t *testing.T) {
	wf := setupTestWorkflow()
	_ = wf.begin(epoch)
	_ = wf.markRunning("fetch", epoch)
	_ = wf.complete("fetch", map[string]any{"success": true}, epoch)

	if _, ok := wf.GlobalContext()["repo_path"]; ok {
		t.Error("missing result field must not create a global key")
	}
}

func TestWorkflow_FailLeavesResultEmpty(t *testing.T) {
	wf := setupTestWorkflow()
	_ = wf.begin(epoch)
	_ = wf.markRunning("fetch", epoch)

	if err := wf.fail("fetch", "boom", epoch.Add(time.Second)); err != nil {
		t.Fatalf("fail: %v", err)
	}

	task, _ := wf.Task("fetch")
	if task.Status != TaskFailed || task.Error != "boom" || task.Result != nil {
		t.Errorf("unexpected failed task: %+v", task)
	}
	if d, ok := task.Duration(); !ok || d != time.Second {
		t.Errorf("expected 1s duration, got %v %v", d, ok)
	}
	if len(wf.GlobalContext()) != 0 {
		t.Error("failed task must not update global context")
	}
	if len(wf.FailedTasks()) != 1 {
		t.Errorf("expected 1 failed task, got %d", len(wf.FailedTasks()))
	}
}

func TestWorkflow_TransitionGuards(t *testing.T) {
	wf := setupTestWorkflow()

	if err := wf.complete("fetch", nil, epoch); err == nil {
		t.Error("expected error completing a pending task")
	}
	if err := wf.markRunning("ghost", epoch); err == nil {
		t.Error("expected error for unknown task")
	}

	_ = wf.begin(epoch)
	if err := wf.begin(epoch); !errors.Is(err, ErrWorkflowNotPending) {
		t.Errorf("expected ErrWorkflowNotPending, got %v", err)
	}

	_ = wf.markRunning("fetch", epoch)
	if err := wf.markRunning("fetch", epoch); err == nil {
		t.Error("expected error starting a running task twice")
	}
}

func TestWorkflow_FinishAndCancel(t *testing.T) {
	wf := setupTestWorkflow()
	_ = wf.begin(epoch)

	if status := wf.finish(epoch.Add(time.Minute)); status != WorkflowFailed {
		t.Errorf("workflow with unfinished tasks must finish Failed, got %s", status)
	}
	if wf.cancel("late", epoch) {
		t.Error("cancel must not override a terminal status")
	}

	other := setupTestWorkflow()
	_ = other.begin(epoch)
	if !other.cancel("stop", epoch.Add(time.Second)) {
		t.Fatal("expected cancel to succeed")
	}
	if status := other.finish(epoch.Add(time.Minute)); status != WorkflowCancelled {
		t.Errorf("finish must keep Cancelled, got %s", status)
	}
	out := other.Outcome()
	if out.Error != "stop" || out.DurationSeconds == nil || *out.DurationSeconds != 1 {
		t.Errorf("unexpected outcome: %+v", out)
	}
}

func TestWorkflow_TasksAreCopies(t *testing.T) {
	wf := setupTestWorkflow()
	task, _ := wf.Task("report")
	task.Status = TaskCompleted
	task.Context["format"] = "txt"

	again, _ := wf.Task("report")
	if again.Status != TaskPending || again.Context["format"] != "md" {
		t.Errorf("mutating a copy leaked into the workflow: %+v", again)
	}
}

func TestStatusText(t *testing.T) {
	for status := range workflowStatusNames {
		text, _ := status.MarshalText()
		var parsed WorkflowStatus
		if err := parsed.UnmarshalText(text); err != nil || parsed != status {
			t.Errorf("workflow status %s did not survive text encoding", status)
		}
	}
	if _, err := ParseTaskStatus("exploded"); err == nil {
		t.Error("expected error for unknown task status")
	}
	if got := TaskStatus(42).String(); got != "TaskStatus(42)" {
		t.Errorf("unexpected fallback name %q", got)
	}
}
