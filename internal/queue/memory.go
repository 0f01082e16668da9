package queue

import (
	"context"
	"sync"
	"time"

	"releasegate/internal/core"
)

// MemoryQueue is a buffered channel; Push blocks when it is full.
type MemoryQueue struct {
	ch        chan core.Event
	done      chan struct{}
	closeOnce sync.Once
}

func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = 64
	}
	return &MemoryQueue{ch: make(chan core.Event, size), done: make(chan struct{})}
}

func (q *MemoryQueue) Push(ctx context.Context, ev core.Event) error {
	select {
	case <-q.done:
		return ErrClosed
	default:
	}
	select {
	case q.ch <- ev:
		return nil
	case <-q.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pop keeps returning pending events after Close and ErrClosed once they
// are drained.
func (q *MemoryQueue) Pop(ctx context.Context) (core.Event, error) {
	select {
	case ev := <-q.ch:
		return ev, nil
	case <-q.done:
		select {
		case ev := <-q.ch:
			return ev, nil
		default:
			return core.Event{}, ErrClosed
		}
	case <-ctx.Done():
		return core.Event{}, ctx.Err()
	}
}

func (q *MemoryQueue) Len() int { return len(q.ch) }

// Close stops accepting events.
func (q *MemoryQueue) Close() {
	q.closeOnce.Do(func() { close(q.done) })
}

// MemoryDeduper keeps claimed keys until their TTL runs out.
type MemoryDeduper struct {
	mu        sync.Mutex
	ttl       time.Duration
	seen      map[string]time.Time
	lastPrune time.Time
	now       func() time.Time
}

// NewMemoryDeduper returns a deduper; ttl <= 0 remembers keys forever.
func NewMemoryDeduper(ttl time.Duration) *MemoryDeduper {
	return &MemoryDeduper{ttl: ttl, seen: map[string]time.Time{}, now: time.Now}
}

func (d *MemoryDeduper) Claim(_ context.Context, key string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	d.pruneLocked(now)
	if exp, ok := d.seen[key]; ok && (exp.IsZero() || now.Before(exp)) {
		return false, nil
	}
	var exp time.Time
	if d.ttl > 0 {
		exp = now.Add(d.ttl)
	}
	d.seen[key] = exp
	return true, nil
}

func (d *MemoryDeduper) Release(_ context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, key)
	return nil
}

// pruneLocked drops expired keys, at most once per TTL.
func (d *MemoryDeduper) pruneLocked(now time.Time) {
	if d.ttl <= 0 || now.Sub(d.lastPrune) < d.ttl {
		return
	}
	for k, exp := range d.seen {
		if !now.Before(exp) {
			delete(d.seen, k)
		}
	}
	d.lastPrune = now
}

func (d *MemoryDeduper) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

// MemoryBus fans status events out to in-process subscribers. A subscriber
// that does not keep up loses events rather than stalling publishers.
type MemoryBus struct {
	mu   sync.Mutex
	subs map[chan RunStatusEvent]struct{}
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: map[chan RunStatusEvent]struct{}{}}
}

func (b *MemoryBus) PublishRun(_ context.Context, ev RunStatusEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- ev:
		default:
			logger.WithField("run_id", ev.RunID).Warn("status subscriber is full, dropping event")
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(ctx context.Context) (<-chan RunStatusEvent, error) {
	ch := make(chan RunStatusEvent, 16)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, ch)
		close(ch)
		b.mu.Unlock()
	}()
	return ch, nil
}
