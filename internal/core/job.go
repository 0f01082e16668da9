package core

import (
	"fmt"
	"time"
)

// Phase groups steps for failure reporting.
type Phase string

const (
	PhaseProvision Phase = "provision" // checkout, runtime setup
	PhaseBuild     Phase = "build"     // installer bootstrap, dependencies, build
	PhasePublish   Phase = "publish"   // registry upload
)

func (p Phase) Valid() bool {
	switch p {
	case PhaseProvision, PhaseBuild, PhasePublish:
		return true
	}
	return false
}

// Step represents a single instruction of the workflow
type Step struct {
	Name    string            `yaml:"name"`
	Uses    string            `yaml:"uses,omitempty"` // built-in action (e.g. "actions/checkout@v4")
	With    map[string]string `yaml:"with,omitempty"`
	Run     string            `yaml:"run,omitempty"` // shell script, runs with sh -e
	Phase   Phase             `yaml:"phase,omitempty"`
	Env     map[string]string `yaml:"env,omitempty"`
	Timeout time.Duration     `yaml:"timeout,omitempty"`
}

// EffectivePhase returns the declared phase, defaulting actions to
// provision and scripts to build.
func (s Step) EffectivePhase() Phase {
	if s.Phase != "" {
		return s.Phase
	}
	if s.Uses != "" {
		return PhaseProvision
	}
	return PhaseBuild
}

// Label is the name used in logs; unnamed steps get their position.
func (s Step) Label(index int) string {
	if s.Name != "" {
		return s.Name
	}
	if s.Uses != "" {
		return s.Uses
	}
	return fmt.Sprintf("step-%d", index+1)
}
