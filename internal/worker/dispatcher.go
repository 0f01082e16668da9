// Package worker pulls accepted push events off the queue and runs the gate
// for each of them.
package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"releasegate/internal/core"
	"releasegate/internal/metrics"
	"releasegate/internal/queue"
	"releasegate/internal/store"
)

var logger = logrus.WithField("package", "worker")

// Gate runs one workflow for one event. *core.Runner satisfies it.
type Gate interface {
	Run(ctx context.Context, wf *core.Workflow, ev core.Event) (*core.Run, error)
}

type Dispatcher struct {
	ID       string
	Queue    queue.EventQueue
	Workflow *core.Workflow
	Gate     Gate
	Store    store.RunStore
	Bus      queue.StatusBus  // optional
	Metrics  *metrics.Metrics // optional

	// Backoff after a queue error before the next Pop.
	Backoff time.Duration
}

func NewDispatcher(q queue.EventQueue, wf *core.Workflow, gate Gate, s store.RunStore) *Dispatcher {
	return &Dispatcher{
		ID:       uuid.New().String(),
		Queue:    q,
		Workflow: wf,
		Gate:     gate,
		Store:    s,
		Backoff:  time.Second,
	}
}

// ProcessNext handles exactly one event. It returns the run it produced, or
// nil when the event did not start one. Only queue errors are returned.
func (d *Dispatcher) ProcessNext(ctx context.Context) (*core.Run, error) {
	ev, err := d.Queue.Pop(ctx)
	if err != nil {
		return nil, err
	}
	log := logger.WithFields(logrus.Fields{"worker": d.ID, "ref": ev.Ref, "commit": ev.Commit})

	// The webhook filtered already, but a queue may be fed by other producers.
	if !d.Workflow.Matches(ev) {
		log.Info("event does not trigger the workflow, ignoring")
		return nil, nil
	}

	if d.Metrics != nil {
		d.Metrics.RunStarted()
		defer d.Metrics.RunEnded()
	}
	run, err := d.Gate.Run(ctx, d.Workflow, ev)
	if run == nil {
		if errors.Is(err, core.ErrNoMatch) {
			log.Info("event does not trigger the workflow, ignoring")
		} else if err != nil {
			log.WithError(err).Error("run could not start")
		}
		return nil, nil
	}

	log = log.WithField("run_id", run.ID)
	if err := d.Store.Save(ctx, run); err != nil {
		log.WithError(err).Error("cannot save run")
	}
	if d.Bus != nil {
		if err := d.Bus.PublishRun(ctx, queue.StatusOf(*run)); err != nil {
			log.WithError(err).Error("cannot publish run status")
		}
	}
	log.WithField("status", run.Status).Info("run finished")
	return run, nil
}

// StartPool starts n dispatch loops. The returned WaitGroup is done once all
// loops have stopped, which happens when ctx is cancelled or the queue
// closes.
func (d *Dispatcher) StartPool(ctx context.Context, n int) *sync.WaitGroup {
	if n < 1 {
		n = 1
	}
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			d.loop(ctx, slot)
		}(i)
	}
	logger.Infof("started %d worker(s)", n)
	return &wg
}

func (d *Dispatcher) loop(ctx context.Context, slot int) {
	for {
		_, err := d.ProcessNext(ctx)
		if ctx.Err() != nil || errors.Is(err, queue.ErrClosed) {
			logger.WithField("slot", slot).Debug("worker stopped")
			return
		}
		if err != nil {
			logger.WithError(err).WithField("slot", slot).Warn("cannot pop event")
			select {
			case <-time.After(d.Backoff):
			case <-ctx.Done():
				return
			}
		}
	}
}
