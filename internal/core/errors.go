package core

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidWorkflow = errors.New("invalid workflow")
	ErrInvalidEvent    = errors.New("invalid event")
	ErrMissingSecret   = errors.New("secret not available")

	// ErrNoMatch is returned when an event does not satisfy the workflow trigger.
	ErrNoMatch = errors.New("event does not match trigger")
)

// FailureKind classifies why a run aborted.
type FailureKind string

const (
	FailureNone           FailureKind = ""
	FailureInfrastructure FailureKind = "infrastructure"
	FailureBuild          FailureKind = "build"
	FailurePublish        FailureKind = "publish"
)

func failureKindFor(p Phase) FailureKind {
	switch p {
	case PhaseProvision:
		return FailureInfrastructure
	case PhasePublish:
		return FailurePublish
	default:
		return FailureBuild
	}
}

// StepError reports the step that aborted a run. Index is -1 when the run
// failed before its first step (workspace allocation).
type StepError struct {
	Step     string
	Index    int
	Kind     FailureKind
	ExitCode int
	Err      error
}

func (e *StepError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("%s failure: %v", e.Kind, e.Err)
	}
	if e.ExitCode > 0 {
		return fmt.Sprintf("%s failure in step %d (%s): exit status %d", e.Kind, e.Index+1, e.Step, e.ExitCode)
	}
	return fmt.Sprintf("%s failure in step %d (%s): %v", e.Kind, e.Index+1, e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }
