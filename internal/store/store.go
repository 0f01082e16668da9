// Package store keeps finished and in-flight runs for status queries.
package store

import (
	"context"
	"errors"

	"releasegate/internal/core"
)

var ErrNotFound = errors.New("run not found")

// RunStore persists run snapshots. Save overwrites the previous snapshot of
// the same run ID.
type RunStore interface {
	Save(ctx context.Context, run *core.Run) error
	Get(ctx context.Context, id string) (*core.Run, error)
	// List returns the newest runs first; limit <= 0 means no limit.
	List(ctx context.Context, limit int) ([]*core.Run, error)
	ListByTag(ctx context.Context, tag string) ([]*core.Run, error)
}
