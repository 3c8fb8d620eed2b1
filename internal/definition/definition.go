// Package definition loads workflow definition files.
package definition

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/aristath/taskflow/internal/scheduler"
)

// File is a workflow definition as written on disk.
//
//	name: release
//	description: build and publish
//	tasks:
//	  - id: build
//	    name: Build
//	    executor: shell
//	    prompt: make build
//	  - id: publish
//	    name: Publish
//	    executor: shell
//	    prompt: make publish
//	    dependencies: [build]
type File struct {
	Name        string                     `json:"name" yaml:"name"`
	Description string                     `json:"description,omitempty" yaml:"description,omitempty"`
	Tasks       []scheduler.TaskDefinition `json:"tasks" yaml:"tasks"`

	// Path is the file the definition was read from, empty when parsed from memory.
	Path string `json:"-" yaml:"-"`
}

// Parse decodes a definition. JSON documents are decoded with encoding/json;
// anything else is treated as YAML.
func Parse(data []byte) (*File, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("definition: payload is empty")
	}

	var f File
	if trimmed[0] == '{' {
		if err := json.Unmarshal(trimmed, &f); err != nil {
			return nil, fmt.Errorf("definition: decode json: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(trimmed, &f); err != nil {
			return nil, fmt.Errorf("definition: decode yaml: %w", err)
		}
	}

	f.Name = strings.TrimSpace(f.Name)
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Load reads and parses a definition file.
func Load(path string) (*File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("definition: stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("definition: %s is a directory", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("definition: read %s: %w", path, err)
	}

	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	f.Path = filepath.Clean(path)
	return f, nil
}

// Validate checks the header fields only; task graph checks live in Order.
func (f *File) Validate() error {
	if f.Name == "" {
		return fmt.Errorf("definition: name is required")
	}
	if len(f.Tasks) == 0 {
		return fmt.Errorf("definition %s: no tasks defined", f.Name)
	}
	return nil
}

// Order validates the task graph and returns task IDs in a valid execution order.
func (f *File) Order() ([]string, error) {
	order, err := scheduler.ValidateDefinitions(f.Tasks)
	if err != nil {
		return nil, fmt.Errorf("definition %s: %w", f.Name, err)
	}
	return order, nil
}
