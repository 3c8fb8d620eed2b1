package definition

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

const releaseYAML = `
name: release
description: build and publish
tasks:
  - id: build
    name: Build
    executor: shell
    prompt: make build
    context:
      update_global_context:
        version: output
  - id: publish
    name: Publish
    executor: shell
    prompt: make publish
    dependencies: [build]
`

func TestParseYAML(t *testing.T) {
	f, err := Parse([]byte(releaseYAML))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if f.Name != "release" || f.Description != "build and publish" {
		t.Errorf("unexpected header: %q / %q", f.Name, f.Description)
	}
	if len(f.Tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(f.Tasks))
	}
	publish := f.Tasks[1]
	if publish.Executor != "shell" || !reflect.DeepEqual(publish.Dependencies, []string{"build"}) {
		t.Errorf("unexpected publish task: %+v", publish)
	}

	directive, ok := f.Tasks[0].Context["update_global_context"].(map[string]any)
	if !ok || directive["version"] != "output" {
		t.Errorf("context directive not decoded as a map: %#v", f.Tasks[0].Context)
	}
}

func TestParseJSON(t *testing.T) {
	data := `{
		"name": "fetch",
		"tasks": [
			{"id": "a", "name": "A", "executor": "http", "prompt": "GET /"},
			{"name": "B", "executor": "http", "prompt": "GET /b", "dependencies": ["a"]}
		]
	}`

	f, err := Parse([]byte(data))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if f.Tasks[1].ID != "" || f.Tasks[1].Dependencies[0] != "a" {
		t.Errorf("unexpected second task: %+v", f.Tasks[1])
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr string
	}{
		{name: "empty", data: "  \n", wantErr: "payload is empty"},
		{name: "bad yaml", data: "name: [unterminated", wantErr: "decode yaml"},
		{name: "bad json", data: `{"name": }`, wantErr: "decode json"},
		{name: "missing name", data: "tasks:\n  - {name: A, executor: x}\n", wantErr: "name is required"},
		{name: "no tasks", data: "name: empty\n", wantErr: "no tasks defined"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "release.yaml")
	if err := os.WriteFile(path, []byte(releaseYAML), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	f, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if f.Path != path {
		t.Errorf("Path = %q, want %q", f.Path, path)
	}

	if _, err := Load(dir); err == nil || !strings.Contains(err.Error(), "is a directory") {
		t.Errorf("expected directory error, got %v", err)
	}
	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestOrder(t *testing.T) {
	f, err := Parse([]byte(releaseYAML))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	order, err := f.Order()
	if err != nil {
		t.Fatalf("Order failed: %v", err)
	}
	if !reflect.DeepEqual(order, []string{"build", "publish"}) {
		t.Errorf("order = %v", order)
	}

	cyclic := &File{Name: "loop", Tasks: f.Tasks}
	cyclic.Tasks[0].Dependencies = []string{"publish"}
	if _, err := cyclic.Order(); err == nil || !strings.Contains(err.Error(), "cycle") {
		t.Errorf("expected cycle error, got %v", err)
	}
}
