package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"releasegate/internal/config"
	"releasegate/internal/core"
	"releasegate/internal/queue"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.LogDir = filepath.Join(dir, "logs")
	cfg.LedgerPath = filepath.Join(dir, "ledger.jsonl")
	cfg.KeyDir = filepath.Join(dir, "keys")
	cfg.WorkspaceRoot = filepath.Join(dir, "work")
	return cfg
}

type okExecutor struct{ calls int }

func (e *okExecutor) Execute(context.Context, core.Command) (core.Result, error) {
	e.calls++
	return core.Result{Output: "ok\n"}, nil
}

func TestNewInProcess(t *testing.T) {
	a, err := New(context.Background(), testConfig(t))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer a.Close()

	if _, ok := a.Queue.(*queue.MemoryQueue); !ok {
		t.Errorf("queue = %T", a.Queue)
	}
	if a.Workflow.Name == "" || len(a.Workflow.Steps) != 6 {
		t.Errorf("unexpected workflow %+v", a.Workflow)
	}
	if len(a.Runner.SigningKey) == 0 || a.Runner.Ledger == nil {
		t.Error("runner is not wired to the ledger")
	}
}

func TestEndToEndWithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.RedisAddr = mr.Addr()
	t.Setenv("PYPI_API_TOKEN", "pypi-end-to-end-token")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	a, err := New(ctx, cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer a.Close()
	if _, ok := a.Queue.(*queue.RedisQueue); !ok {
		t.Fatalf("queue = %T", a.Queue)
	}
	exec := &okExecutor{}
	a.Runner.Executor = exec

	if err := a.Queue.Push(ctx, core.TagEvent("v0.3.0", "abc", "repo")); err != nil {
		t.Fatal(err)
	}
	run, err := a.Dispatcher().ProcessNext(ctx)
	if err != nil || run == nil {
		t.Fatalf("process: %v %v", run, err)
	}
	if run.Status != core.RunSuccess || exec.calls != 6 {
		t.Errorf("status %s after %d steps", run.Status, exec.calls)
	}
	if entries := a.Ledger.ForRun(run.ID); len(entries) != 6 {
		t.Errorf("ledger has %d entries for the run", len(entries))
	}
	if err := a.Ledger.VerifyChain(); err != nil {
		t.Errorf("verify: %v", err)
	}
}

func TestNewRejectsBadWorkflow(t *testing.T) {
	cfg := testConfig(t)
	cfg.WorkflowPath = filepath.Join(t.TempDir(), "missing.yaml")
	if _, err := New(context.Background(), cfg); err == nil {
		t.Error("expected error for missing workflow")
	}
}
