package core

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"
)

func TestShellExecutorCapturesOutput(t *testing.T) {
	e := NewShellExecutor()
	res, err := e.Execute(context.Background(), Command{
		Script: "echo out; echo err 1>&2",
		Dir:    t.TempDir(),
		Env:    os.Environ(),
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(res.Output, "out") || !strings.Contains(res.Output, "err") {
		t.Errorf("expected combined output, got %q", res.Output)
	}
	if res.ExitCode != 0 {
		t.Errorf("expected exit 0, got %d", res.ExitCode)
	}
}

func TestShellExecutorExitCode(t *testing.T) {
	e := NewShellExecutor()
	res, err := e.Execute(context.Background(), Command{Script: "exit 3", Dir: t.TempDir(), Env: os.Environ()})
	if err == nil {
		t.Fatal("expected error")
	}
	if res.ExitCode != 3 {
		t.Errorf("expected exit 3, got %d", res.ExitCode)
	}
}

func TestShellExecutorTimeout(t *testing.T) {
	e := NewShellExecutor()
	start := time.Now()
	_, err := e.Execute(context.Background(), Command{Script: "sleep 5", Dir: t.TempDir(), Env: os.Environ(), Timeout: 100 * time.Millisecond})
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if time.Since(start) > 3*time.Second {
		t.Errorf("timeout not enforced")
	}
}

func TestShellExecutorUsesOnlyGivenEnv(t *testing.T) {
	t.Setenv("RELEASEGATE_TEST_LEAK", "leaked")
	e := NewShellExecutor()
	res, err := e.Execute(context.Background(), Command{
		Script: `echo "[$RELEASEGATE_TEST_LEAK][$ONLY]"`,
		Dir:    t.TempDir(),
		Env:    []string{"PATH=" + os.Getenv("PATH"), "ONLY=yes"},
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if strings.TrimSpace(res.Output) != "[][yes]" {
		t.Errorf("unexpected output %q", res.Output)
	}
}
