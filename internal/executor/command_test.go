package executor

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"syscall"
	"testing"
	"time"
)

func TestNewCommandExecutor_Validation(t *testing.T) {
	if _, err := NewCommandExecutor(CommandConfig{Command: "cat"}, nil); err == nil {
		t.Error("expected error for missing name")
	}
	if _, err := NewCommandExecutor(CommandConfig{Name: "echo"}, nil); err == nil {
		t.Error("expected error for missing command")
	}
}

// TestCommandExecutor_EchoesRequest uses cat to send the JSON request straight back,
// which exercises request encoding and JSON result parsing together.
func TestCommandExecutor_EchoesRequest(t *testing.T) {
	ce, err := NewCommandExecutor(CommandConfig{Name: "echo", Command: "cat"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	res, err := ce.Execute(context.Background(), "summarize", map[string]any{"topic": "go"})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if !res.Success() {
		t.Errorf("expected success to default to true, got %v", res["success"])
	}
	if res["prompt"] != "summarize" {
		t.Errorf("expected prompt 'summarize', got %v", res["prompt"])
	}
	ctxField, ok := res["context"].(map[string]any)
	if !ok || ctxField["topic"] != "go" {
		t.Errorf("expected context to round-trip, got %v", res["context"])
	}
}

func TestCommandExecutor_PlainTextOutput(t *testing.T) {
	ce, _ := NewCommandExecutor(CommandConfig{
		Name:    "plain",
		Command: "sh",
		Args:    []string{"-c", "echo hello world"},
	}, nil)

	res, err := ce.Execute(context.Background(), "", nil)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !res.Success() {
		t.Error("expected success")
	}
	if res["output"] != "hello world" {
		t.Errorf("expected output 'hello world', got %q", res["output"])
	}
}

func TestCommandExecutor_ExplicitFailureResult(t *testing.T) {
	ce, _ := NewCommandExecutor(CommandConfig{
		Name:    "failing",
		Command: "sh",
		Args:    []string{"-c", `echo '{"success": false, "error": "quota exceeded"}'`},
	}, nil)

	res, err := ce.Execute(context.Background(), "", nil)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if res.Success() {
		t.Error("expected success=false to be preserved")
	}
	if res.ErrorMessage() != "quota exceeded" {
		t.Errorf("unexpected error message %q", res.ErrorMessage())
	}
}

func TestCommandExecutor_NonZeroExit(t *testing.T) {
	ce, _ := NewCommandExecutor(CommandConfig{
		Name:    "broken",
		Command: "sh",
		Args:    []string{"-c", "echo boom >&2; exit 3"},
	}, nil)

	_, err := ce.Execute(context.Background(), "", nil)
	if err == nil {
		t.Fatal("expected error for non-zero exit")
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Errorf("expected stderr in error, got: %v", err)
	}
}

func TestCommandExecutor_Env(t *testing.T) {
	ce, _ := NewCommandExecutor(CommandConfig{
		Name:    "env",
		Command: "sh",
		Args:    []string{"-c", "echo $TASKFLOW_GREETING"},
		Env:     map[string]string{"TASKFLOW_GREETING": "hi"},
	}, nil)

	res, err := ce.Execute(context.Background(), "", nil)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if res["output"] != "hi" {
		t.Errorf("expected env to reach subprocess, got %q", res["output"])
	}
}

func TestCommandExecutor_PromptEnv(t *testing.T) {
	ce, _ := NewCommandExecutor(CommandConfig{
		Name:    "shell",
		Command: "sh",
		Args:    []string{"-c", `eval "$TASKFLOW_PROMPT"`},
	}, nil)

	res, err := ce.Execute(context.Background(), "echo from-prompt", nil)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if res["output"] != "from-prompt" {
		t.Errorf("expected prompt to run as a shell command, got %q", res["output"])
	}
}

func TestCommandExecutor_ContextCancellation(t *testing.T) {
	pm := NewProcessManager()
	ce, _ := NewCommandExecutor(CommandConfig{Name: "slow", Command: "sleep", Args: []string{"30"}}, pm)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := ce.Execute(ctx, "", nil)
	if err == nil {
		t.Fatal("expected error after context timeout")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected DeadlineExceeded in chain, got: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("subprocess was not killed promptly (took %v)", elapsed)
	}
	if pm.Count() != 0 {
		t.Errorf("expected process to be untracked, got %d", pm.Count())
	}
}

func TestParseCommandOutput(t *testing.T) {
	res, err := parseCommandOutput([]byte("  {\"result_text\": \"hello\"}\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res["result_text"] != "hello" || !res.Success() {
		t.Errorf("unexpected result: %v", res)
	}

	if _, err := parseCommandOutput([]byte("{not json")); err == nil {
		t.Error("expected error for malformed JSON object")
	}

	res, err = parseCommandOutput(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res["output"] != "" || !res.Success() {
		t.Errorf("expected empty successful output, got %v", res)
	}
}

func TestProcessManager_KillAll(t *testing.T) {
	pm := NewProcessManager()

	cmd := exec.Command("sleep", "60")
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Start(); err != nil {
		t.Fatalf("failed to start subprocess: %v", err)
	}
	pm.Track(cmd)

	if pm.Count() != 1 {
		t.Errorf("expected 1 tracked process, got %d", pm.Count())
	}

	if err := pm.KillAll(); err != nil {
		t.Errorf("KillAll failed: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		if err == nil {
			t.Error("expected killed process to exit with error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("process did not terminate after KillAll")
	}

	pm.Untrack(cmd)
	if pm.Count() != 0 {
		t.Errorf("expected 0 tracked processes, got %d", pm.Count())
	}
}
