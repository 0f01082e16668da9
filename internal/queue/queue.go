// Package queue carries push events from the webhook to the workers and run
// outcomes back out. Each concern has an in-process and a redis backend.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"releasegate/internal/core"
)

var logger = logrus.WithField("package", "queue")

// ErrClosed is returned by Push after Close and by Pop once the closed
// queue is drained.
var ErrClosed = errors.New("queue closed")

// EventQueue is a FIFO of accepted push events.
type EventQueue interface {
	Push(ctx context.Context, ev core.Event) error
	Pop(ctx context.Context) (core.Event, error)
}

// Deduper remembers event keys so a redelivered webhook starts no second run.
type Deduper interface {
	// Claim reports true the first time key is seen within the TTL.
	Claim(ctx context.Context, key string) (bool, error)
	// Release forgets a claim whose event could not be queued, so a
	// redelivery is accepted.
	Release(ctx context.Context, key string) error
}

// StatusBus broadcasts the terminal status of every run.
type StatusBus interface {
	PublishRun(ctx context.Context, ev RunStatusEvent) error
	Subscribe(ctx context.Context) (<-chan RunStatusEvent, error)
}

// RunStatusEvent is the single success/failure report of a run.
type RunStatusEvent struct {
	RunID       string           `json:"run_id"`
	Tag         string           `json:"tag"`
	Commit      string           `json:"commit"`
	Status      core.RunStatus   `json:"status"`
	FailureKind core.FailureKind `json:"failure_kind,omitempty"`
	Error       string           `json:"error,omitempty"`
	FinishedAt  time.Time        `json:"finished_at"`
}

// StatusOf summarises a finished run.
func StatusOf(run core.Run) RunStatusEvent {
	return RunStatusEvent{
		RunID:       run.ID,
		Tag:         run.Tag,
		Commit:      run.Event.Commit,
		Status:      run.Status,
		FailureKind: run.FailureKind,
		Error:       run.Error,
		FinishedAt:  run.FinishedAt,
	}
}
