package telemetry

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"DEBUG", slog.LevelDebug},
		{"debug", slog.LevelDebug},
		{"warn", slog.LevelWarn},
		{"WARNING", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewLogger_JSONByDefault(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "info", "")

	logger.Debug("hidden")
	logger.Info("task completed", "task_id", "build")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line (debug filtered), got %d: %q", len(lines), buf.String())
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("expected JSON output: %v", err)
	}
	if entry["msg"] != "task completed" || entry["task_id"] != "build" {
		t.Errorf("unexpected entry %v", entry)
	}
}

func TestNewLogger_Text(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(&buf, "debug", "TEXT").Debug("dispatching", "workflow_id", "wf-1")

	out := buf.String()
	if !strings.Contains(out, "msg=dispatching") || !strings.Contains(out, "workflow_id=wf-1") {
		t.Errorf("unexpected text output %q", out)
	}
}

func TestSetupLogger_EnvFallback(t *testing.T) {
	t.Setenv(EnvLogLevel, "error")
	t.Setenv(EnvLogFormat, "text")
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	logger := SetupLogger(&buf, "", "")
	logger.Warn("filtered")
	slog.Error("via default", "executor", "shell")

	out := buf.String()
	if strings.Contains(out, "filtered") {
		t.Errorf("warn should be below the env level, got %q", out)
	}
	if !strings.Contains(out, "msg=\"via default\"") || !strings.Contains(out, "executor=shell") {
		t.Errorf("default logger not installed or not text: %q", out)
	}
}
