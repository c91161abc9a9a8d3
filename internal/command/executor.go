package command

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/g960059/devmode/internal/config"
	"github.com/g960059/devmode/internal/model"
)

type RunResult struct {
	Output   string
	Duration time.Duration
}

type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// OSRunner returns the command's stdout only. Stderr of a failed command is
// folded into the error.
type OSRunner struct{}

func (OSRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.Output()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if stderr := strings.TrimSpace(string(exitErr.Stderr)); stderr != "" {
			return out, fmt.Errorf("%w: %s", err, stderr)
		}
	}
	return out, err
}

// Executor runs short-lived external commands with a per-call timeout.
// Commands are never retried.
type Executor struct {
	timeout time.Duration
	runner  Runner
}

func NewExecutor(cfg config.Config) *Executor {
	return &Executor{
		timeout: cfg.CommandTimeout,
		runner:  OSRunner{},
	}
}

func NewExecutorWithRunner(cfg config.Config, runner Runner) *Executor {
	e := NewExecutor(cfg)
	e.runner = runner
	return e
}

func (e *Executor) Run(ctx context.Context, command []string) (RunResult, error) {
	if len(command) == 0 {
		return RunResult{}, fmt.Errorf("empty command")
	}
	runCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	start := time.Now()
	out, err := e.runner.Run(runCtx, command[0], command[1:]...)
	if err == nil {
		return RunResult{Output: string(out), Duration: time.Since(start)}, nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return RunResult{}, fmt.Errorf("%s: %s: %w", model.ErrCommandFailed, command[0], err)
	}
	detail := strings.TrimSpace(string(out))
	if detail != "" {
		return RunResult{Output: string(out)}, fmt.Errorf("%s: %s: %w: %s", model.ErrCommandFailed, command[0], err, detail)
	}
	return RunResult{Output: string(out)}, fmt.Errorf("%s: %s: %w", model.ErrCommandFailed, command[0], err)
}
