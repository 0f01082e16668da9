package core

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed release.yaml
var defaultWorkflow []byte

// ParseWorkflow parses YAML content into a validated Workflow
func ParseWorkflow(data []byte) (*Workflow, error) {
	var wf Workflow
	if err := yaml.Unmarshal(data, &wf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWorkflow, err)
	}
	if err := wf.Validate(DefaultActions()); err != nil {
		return nil, err
	}
	return &wf, nil
}

// LoadWorkflow reads a workflow file. An empty path yields the built-in
// release workflow.
func LoadWorkflow(path string) (*Workflow, error) {
	if path == "" {
		return DefaultWorkflow()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workflow %s: %w", path, err)
	}
	return ParseWorkflow(data)
}

// DefaultWorkflow returns the embedded tag-triggered publish workflow.
func DefaultWorkflow() (*Workflow, error) {
	return ParseWorkflow(defaultWorkflow)
}
