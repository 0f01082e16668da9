package store

import (
	"context"

	"github.com/sirupsen/logrus"

	"releasegate/internal/core"
)

var logger = logrus.WithField("package", "store")

// ProgressObserver saves a run snapshot after every step so status queries
// see in-flight runs. The final snapshot is saved by whoever owns the run.
type ProgressObserver struct {
	Store RunStore
}

func (o ProgressObserver) StepFinished(run core.Run, _ core.StepResult) {
	if err := o.Store.Save(context.Background(), &run); err != nil {
		logger.WithError(err).WithField("run_id", run.ID).Warn("cannot save run progress")
	}
}

func (o ProgressObserver) RunFinished(core.Run) {}
