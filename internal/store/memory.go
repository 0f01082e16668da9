package store

import (
	"context"
	"sort"
	"sync"

	"releasegate/internal/core"
)

// MemoryStore is the default RunStore when no database is configured.
type MemoryStore struct {
	mu   sync.RWMutex
	runs map[string]core.Run
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: make(map[string]core.Run)}
}

func (s *MemoryStore) Save(_ context.Context, run *core.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = run.Snapshot()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*core.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := run.Snapshot()
	return &cp, nil
}

func (s *MemoryStore) List(_ context.Context, limit int) ([]*core.Run, error) {
	return s.filter(func(core.Run) bool { return true }, limit), nil
}

func (s *MemoryStore) ListByTag(_ context.Context, tag string) ([]*core.Run, error) {
	return s.filter(func(r core.Run) bool { return r.Tag == tag }, 0), nil
}

func (s *MemoryStore) filter(keep func(core.Run) bool, limit int) []*core.Run {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*core.Run, 0, len(s.runs))
	for _, r := range s.runs {
		if keep(r) {
			cp := r.Snapshot()
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
