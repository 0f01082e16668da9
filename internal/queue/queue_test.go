package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"releasegate/internal/core"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := NewRedisClient(context.Background(), mr.Addr())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func testQueueOrder(t *testing.T, q EventQueue) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, tag := range []string{"v1.0.0", "v1.0.1", "nightly"} {
		if err := q.Push(ctx, core.TagEvent(tag, "sha-"+tag, "repo")); err != nil {
			t.Fatalf("push: %v", err)
		}
	}
	for _, want := range []string{"v1.0.0", "v1.0.1", "nightly"} {
		ev, err := q.Pop(ctx)
		if err != nil {
			t.Fatalf("pop: %v", err)
		}
		if ev.Tag() != want || ev.Commit != "sha-"+want {
			t.Errorf("popped %+v, want %s", ev, want)
		}
	}
}

func TestMemoryQueueOrder(t *testing.T) {
	testQueueOrder(t, NewMemoryQueue(4))
}

func TestRedisQueueOrder(t *testing.T) {
	_, client := newRedis(t)
	testQueueOrder(t, NewRedisQueue(client))
}

func TestMemoryQueueClose(t *testing.T) {
	q := NewMemoryQueue(2)
	_ = q.Push(context.Background(), core.TagEvent("v1", "a", "r"))
	q.Close()

	if _, err := q.Pop(context.Background()); err != nil {
		t.Fatalf("pending event lost: %v", err)
	}
	if _, err := q.Pop(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if err := q.Push(context.Background(), core.TagEvent("v2", "b", "r")); !errors.Is(err, ErrClosed) {
		t.Errorf("push after close: %v", err)
	}
}

func TestRedisQueuePopHonoursContext(t *testing.T) {
	_, client := newRedis(t)
	q := NewRedisQueue(client)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := q.Pop(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if time.Since(start) > 3*time.Second {
		t.Error("pop kept blocking after the context expired")
	}
}

func TestRedisQueueSkipsMalformed(t *testing.T) {
	mr, client := newRedis(t)
	q := NewRedisQueue(client)
	mr.Lpush(EventsKey, "not json")
	_ = q.Push(context.Background(), core.TagEvent("v2", "b", "r"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ev, err := q.Pop(ctx)
	if err != nil || ev.Tag() != "v2" {
		t.Fatalf("got %+v, %v", ev, err)
	}
}

func TestMemoryDeduper(t *testing.T) {
	d := NewMemoryDeduper(time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return now }
	ctx := context.Background()

	if ok, _ := d.Claim(ctx, "delivery-1"); !ok {
		t.Fatal("first claim should succeed")
	}
	if ok, _ := d.Claim(ctx, "delivery-1"); ok {
		t.Error("second claim should be refused")
	}
	if ok, _ := d.Claim(ctx, "delivery-2"); !ok {
		t.Error("other keys are independent")
	}
	now = now.Add(2 * time.Minute)
	if ok, _ := d.Claim(ctx, "delivery-1"); !ok {
		t.Error("claim should succeed again after the ttl")
	}
}

func TestMemoryDeduperPrunesExpiredKeys(t *testing.T) {
	d := NewMemoryDeduper(time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return now }
	ctx := context.Background()

	for _, key := range []string{"a", "b", "c"} {
		_, _ = d.Claim(ctx, key)
	}
	now = now.Add(5 * time.Minute)
	_, _ = d.Claim(ctx, "d")
	if n := d.Len(); n != 1 {
		t.Errorf("expected only the fresh key to remain, got %d", n)
	}
}

func TestDeduperRelease(t *testing.T) {
	_, client := newRedis(t)
	for name, d := range map[string]Deduper{
		"memory": NewMemoryDeduper(time.Hour),
		"redis":  NewRedisDeduper(client, time.Hour),
	} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if ok, _ := d.Claim(ctx, "d-1"); !ok {
				t.Fatal("first claim refused")
			}
			if err := d.Release(ctx, "d-1"); err != nil {
				t.Fatalf("release: %v", err)
			}
			if ok, _ := d.Claim(ctx, "d-1"); !ok {
				t.Error("released key should be claimable again")
			}
		})
	}
}

func TestRedisDeduper(t *testing.T) {
	mr, client := newRedis(t)
	d := NewRedisDeduper(client, time.Minute)
	ctx := context.Background()

	if ok, err := d.Claim(ctx, "delivery-1"); err != nil || !ok {
		t.Fatalf("first claim: %v %v", ok, err)
	}
	if ok, _ := d.Claim(ctx, "delivery-1"); ok {
		t.Error("duplicate delivery was claimed twice")
	}
	mr.FastForward(2 * time.Minute)
	if ok, _ := d.Claim(ctx, "delivery-1"); !ok {
		t.Error("claim should expire with its ttl")
	}
}

func testBus(t *testing.T, bus StatusBus) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ch, err := bus.Subscribe(ctx)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	want := RunStatusEvent{RunID: "r1", Tag: "v1.2.3", Status: core.RunFailure, FailureKind: core.FailurePublish}
	if err := bus.PublishRun(ctx, want); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case got := <-ch:
		if got.RunID != want.RunID || got.Status != want.Status || got.FailureKind != want.FailureKind {
			t.Errorf("got %+v, want %+v", got, want)
		}
	case <-ctx.Done():
		t.Fatal("no status event received")
	}
}

func TestMemoryBus(t *testing.T) {
	testBus(t, NewMemoryBus())
}

func TestRedisBus(t *testing.T) {
	_, client := newRedis(t)
	testBus(t, NewRedisBus(client))
}

func TestMemoryBusClosesOnCancel(t *testing.T) {
	bus := NewMemoryBus()
	ctx, cancel := context.WithCancel(context.Background())
	ch, _ := bus.Subscribe(ctx)
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected closed channel")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("subscription not closed")
	}
}

func TestStatusOf(t *testing.T) {
	run := core.Run{ID: "x", Tag: "v1", Event: core.Event{Commit: "abc"}, Status: core.RunSuccess}
	ev := StatusOf(run)
	if ev.RunID != "x" || ev.Commit != "abc" || ev.Status != core.RunSuccess {
		t.Errorf("unexpected %+v", ev)
	}
}
