package core

import (
	"fmt"
	"sort"
	"strings"
)

// Workflow is the release pipeline definition (release.yaml)
type Workflow struct {
	Name        string            `yaml:"name"`
	On          Trigger           `yaml:"on"`
	Permissions map[string]string `yaml:"permissions,omitempty"`
	Secrets     []string          `yaml:"secrets,omitempty"` // names resolved from the secret store
	Env         map[string]string `yaml:"env,omitempty"`
	Steps       []Step            `yaml:"steps"` // executed strictly in this order
}

// Trigger lists the repository events a workflow subscribes to
type Trigger struct {
	Push PushTrigger `yaml:"push"`
}

// PushTrigger holds ref patterns. Tag patterns match tag names, branch
// patterns match branch names; an empty list matches nothing.
type PushTrigger struct {
	Tags     []string `yaml:"tags,omitempty"`
	Branches []string `yaml:"branches,omitempty"`
}

var permissionLevels = map[string]bool{"read": true, "write": true, "none": true}

// Validate checks the workflow before any run is allowed to start.
func (w *Workflow) Validate(actions ActionRegistry) error {
	if len(w.Steps) == 0 {
		return fmt.Errorf("%w: workflow %q has no steps", ErrInvalidWorkflow, w.Name)
	}
	if len(w.On.Push.Tags) == 0 && len(w.On.Push.Branches) == 0 {
		return fmt.Errorf("%w: workflow %q has no push trigger", ErrInvalidWorkflow, w.Name)
	}
	for _, p := range append(append([]string{}, w.On.Push.Tags...), w.On.Push.Branches...) {
		if !validPattern(p) {
			return fmt.Errorf("%w: bad ref pattern %q", ErrInvalidWorkflow, p)
		}
	}
	for scope, level := range w.Permissions {
		if !permissionLevels[level] {
			return fmt.Errorf("%w: permission %s has invalid level %q", ErrInvalidWorkflow, scope, level)
		}
	}

	declared := make(map[string]bool, len(w.Secrets))
	for _, s := range w.Secrets {
		declared[s] = true
	}

	for i, step := range w.Steps {
		label := step.Label(i)
		hasRun := strings.TrimSpace(step.Run) != ""
		hasUses := strings.TrimSpace(step.Uses) != ""
		if hasRun == hasUses {
			return fmt.Errorf("%w: step %s needs exactly one of run or uses", ErrInvalidWorkflow, label)
		}
		if hasUses {
			if _, ok := actions.Lookup(step.Uses); !ok {
				return fmt.Errorf("%w: step %s uses unknown action %q", ErrInvalidWorkflow, label, step.Uses)
			}
		}
		if step.Phase != "" && !step.Phase.Valid() {
			return fmt.Errorf("%w: step %s has unknown phase %q", ErrInvalidWorkflow, label, step.Phase)
		}
		if step.Timeout < 0 {
			return fmt.Errorf("%w: step %s has negative timeout", ErrInvalidWorkflow, label)
		}
		for _, name := range SecretRefs(step.Run) {
			if !declared[name] {
				return fmt.Errorf("%w: step %s references undeclared secret %q", ErrInvalidWorkflow, label, name)
			}
		}
	}

	if _, err := NewScheduler().Plan(w); err != nil {
		return err
	}
	return nil
}

// PermissionList renders permissions as "scope:level" pairs in a stable order.
func (w *Workflow) PermissionList() []string {
	out := make([]string, 0, len(w.Permissions))
	for scope, level := range w.Permissions {
		out = append(out, scope+":"+level)
	}
	sort.Strings(out)
	return out
}
