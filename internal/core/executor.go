package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

// Command is a prepared step invocation.
type Command struct {
	Script  string   // shell script; secret values are never inlined
	Dir     string   // workspace directory
	Env     []string // complete child environment, KEY=VALUE
	Timeout time.Duration
}

// Result is the outcome of running a Command.
type Result struct {
	Output   string
	ExitCode int
	Duration time.Duration
}

// Executor is responsible for running steps (commands)
type Executor interface {
	Execute(ctx context.Context, cmd Command) (Result, error)
}

// ShellExecutor runs scripts with `sh -e -c` so a multi-line step aborts on
// its first failing line.
type ShellExecutor struct {
	Shell string
}

func NewShellExecutor() *ShellExecutor {
	return &ShellExecutor{Shell: "sh"}
}

// Execute runs the script and returns combined stdout/stderr. A non-zero
// exit is reported both in Result.ExitCode and as an error.
func (e *ShellExecutor) Execute(ctx context.Context, c Command) (Result, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	shell := e.Shell
	if shell == "" {
		shell = "sh"
	}
	cmd := exec.CommandContext(ctx, shell, "-e", "-c", c.Script)
	cmd.Dir = c.Dir
	cmd.Env = c.Env

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	start := time.Now()
	err := cmd.Run()
	res := Result{Output: out.String(), Duration: time.Since(start)}
	if err == nil {
		return res, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		if res.ExitCode < 0 {
			res.ExitCode = -1
		}
	} else {
		res.ExitCode = -1
	}
	if ctx.Err() != nil {
		return res, fmt.Errorf("step interrupted: %w", ctx.Err())
	}
	return res, fmt.Errorf("exit status %d: %w", res.ExitCode, err)
}
