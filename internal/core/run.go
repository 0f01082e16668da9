package core

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	RunPending RunStatus = "pending"
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunFailure RunStatus = "failure"
)

// StepStatus is the outcome of a single step.
type StepStatus string

const (
	StepPending StepStatus = "pending"
	StepRunning StepStatus = "running"
	StepSuccess StepStatus = "success"
	StepFailure StepStatus = "failure"
	StepSkipped StepStatus = "skipped" // never executed because an earlier step failed
)

// Run is one end-to-end execution of a workflow for one event.
type Run struct {
	ID          string       `json:"id"`
	Workflow    string       `json:"workflow"`
	Event       Event        `json:"event"`
	Tag         string       `json:"tag"`
	Version     string       `json:"version"`
	Permissions []string     `json:"permissions,omitempty"`
	Status      RunStatus    `json:"status"`
	FailureKind FailureKind  `json:"failure_kind,omitempty"`
	Error       string       `json:"error,omitempty"`
	Steps       []StepResult `json:"steps"`
	StartedAt   time.Time    `json:"started_at"`
	FinishedAt  time.Time    `json:"finished_at,omitempty"`
}

// StepResult records one step of a run.
type StepResult struct {
	Name       string        `json:"name"`
	Phase      Phase         `json:"phase"`
	Command    string        `json:"command"` // as declared; secrets stay as references
	Status     StepStatus    `json:"status"`
	ExitCode   int           `json:"exit_code"`
	Duration   time.Duration `json:"duration"`
	LogPath    string        `json:"log_path,omitempty"`
	StartedAt  time.Time     `json:"started_at,omitempty"`
	FinishedAt time.Time     `json:"finished_at,omitempty"`
}

// NewRun creates a pending run with one pending step per workflow step.
func NewRun(wf *Workflow, ev Event, now time.Time) *Run {
	tag := ev.Tag()
	run := &Run{
		ID:          uuid.New().String(),
		Workflow:    wf.Name,
		Event:       ev,
		Tag:         tag,
		Version:     ReleaseVersion(tag),
		Permissions: wf.PermissionList(),
		Status:      RunPending,
		Steps:       make([]StepResult, len(wf.Steps)),
		StartedAt:   now,
	}
	for i, s := range wf.Steps {
		run.Steps[i] = StepResult{
			Name:    s.Label(i),
			Phase:   s.EffectivePhase(),
			Command: describeStep(s),
			Status:  StepPending,
		}
	}
	return run
}

func (r *Run) Finished() bool {
	return r.Status == RunSuccess || r.Status == RunFailure
}

// Snapshot returns a deep copy safe to hand to observers and stores.
func (r *Run) Snapshot() Run {
	cp := *r
	cp.Steps = append([]StepResult(nil), r.Steps...)
	cp.Permissions = append([]string(nil), r.Permissions...)
	return cp
}

func describeStep(s Step) string {
	if s.Uses != "" {
		return "uses: " + s.Uses
	}
	return s.Run
}
