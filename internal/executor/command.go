package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// CommandConfig describes an executor backed by an external program.
type CommandConfig struct {
	Name    string
	Command string
	Args    []string
	WorkDir string
	Env     map[string]string
}

// PromptEnv is the environment variable holding the task prompt for command executors.
const PromptEnv = "TASKFLOW_PROMPT"

// CommandExecutor runs a subprocess per task.
// The request is written to stdin as JSON and the prompt is also exported as
// TASKFLOW_PROMPT; stdout is read back as the result.
type CommandExecutor struct {
	cfg     CommandConfig
	procMgr *ProcessManager
}

// commandRequest is the JSON document written to the subprocess stdin.
// Example: {"prompt": "summarize", "context": {"dependency_fetch": {...}}}
type commandRequest struct {
	Prompt  string         `json:"prompt"`
	Context map[string]any `json:"context"`
}

// NewCommandExecutor creates a CommandExecutor.
// The ProcessManager is optional; if nil, subprocesses are not tracked.
func NewCommandExecutor(cfg CommandConfig, procMgr *ProcessManager) (*CommandExecutor, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("command executor: name is required")
	}
	if cfg.Command == "" {
		return nil, fmt.Errorf("command executor %q: command is required", cfg.Name)
	}
	return &CommandExecutor{cfg: cfg, procMgr: procMgr}, nil
}

// Name returns the registry key.
func (c *CommandExecutor) Name() string {
	return c.cfg.Name
}

// Execute runs the configured command for one task.
func (c *CommandExecutor) Execute(ctx context.Context, prompt string, input map[string]any) (Result, error) {
	payload, err := json.Marshal(commandRequest{Prompt: prompt, Context: input})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	cmd := newCommand(ctx, c.cfg.Command, c.cfg.Args...)
	cmd.Dir = c.cfg.WorkDir
	cmd.Env = append(os.Environ(), PromptEnv+"="+prompt)
	for k, v := range c.cfg.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	stdout, stderr, err := executeCommand(ctx, cmd, payload, c.procMgr)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.cfg.Name, err)
	}

	res, err := parseCommandOutput(stdout)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse output: %w (stderr: %s)", c.cfg.Name, err, string(stderr))
	}
	return res, nil
}

// parseCommandOutput turns subprocess stdout into a Result.
// A JSON object is used as-is, with "success" defaulting to true.
// Anything else is wrapped as {"success": true, "output": <text>}.
func parseCommandOutput(data []byte) (Result, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Result{"success": true, "output": string(trimmed)}, nil
	}

	var res Result
	if err := json.Unmarshal(trimmed, &res); err != nil {
		return nil, err
	}
	if _, ok := res["success"]; !ok {
		res["success"] = true
	}
	return res, nil
}
