package core

import "fmt"

// PlannedStep is one entry of the execution order.
type PlannedStep struct {
	Index int
	Name  string
	Phase Phase
	Step  Step
}

// Scheduler decides execution order of steps
type Scheduler struct{}

// NewScheduler creates a new scheduler
func NewScheduler() *Scheduler {
	return &Scheduler{}
}

// Plan returns the steps in declaration order. Publish steps may not precede
// a build step, since nothing may be uploaded before it is built.
func (s *Scheduler) Plan(wf *Workflow) ([]PlannedStep, error) {
	plan := make([]PlannedStep, 0, len(wf.Steps))
	lastBuild := -1
	for i, step := range wf.Steps {
		if step.EffectivePhase() == PhaseBuild {
			lastBuild = i
		}
	}
	for i, step := range wf.Steps {
		phase := step.EffectivePhase()
		if phase == PhasePublish && i < lastBuild {
			return nil, fmt.Errorf("%w: publish step %q runs before build step %q",
				ErrInvalidWorkflow, step.Label(i), wf.Steps[lastBuild].Label(lastBuild))
		}
		plan = append(plan, PlannedStep{Index: i, Name: step.Label(i), Phase: phase, Step: step})
	}
	return plan, nil
}
