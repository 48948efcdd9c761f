package executor

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/xdg/privd/internal/clog"
)

// Defaults for ShellExecutor.
const (
	DefaultShell     = "/bin/sh"
	DefaultTimeout   = 30 * time.Second
	DefaultMaxOutput = 1 << 20 // 1 MiB

	// defaultWaitDelay bounds how long Wait keeps draining pipes after the
	// shell has exited or been killed.
	defaultWaitDelay = 2 * time.Second
)

// ShellExecutor runs commands through "<shell> -c" with stdout and stderr
// merged into one capped stream.
//
// Each command runs in its own process group. On timeout or cancellation
// the whole group is killed. On Linux, group members still alive when the
// shell exits are killed as well, before the shell is reaped.
type ShellExecutor struct {
	shell     string
	timeout   time.Duration
	maxOutput int
	waitDelay time.Duration
}

// Option configures a ShellExecutor.
type Option func(*ShellExecutor)

// WithShell sets the shell binary.
func WithShell(path string) Option {
	return func(e *ShellExecutor) {
		e.shell = path
	}
}

// WithTimeout sets the default per-command timeout.
func WithTimeout(d time.Duration) Option {
	return func(e *ShellExecutor) {
		e.timeout = d
	}
}

// WithMaxOutput sets the cap on captured output in bytes.
func WithMaxOutput(n int) Option {
	return func(e *ShellExecutor) {
		e.maxOutput = n
	}
}

// NewShellExecutor creates a ShellExecutor with defaults overridden by opts.
func NewShellExecutor(opts ...Option) *ShellExecutor {
	e := &ShellExecutor{
		shell:     DefaultShell,
		timeout:   DefaultTimeout,
		maxOutput: DefaultMaxOutput,
		waitDelay: defaultWaitDelay,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs req.Command and classifies the result.
func (e *ShellExecutor) Execute(ctx context.Context, req Request) Result {
	timeout := e.timeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out := newCappedBuffer(e.maxOutput)
	cmd := exec.CommandContext(runCtx, e.shell, "-c", req.Command)
	cmd.Stdout = out
	cmd.Stderr = out
	isolate(cmd)

	// reaped is set before Wait collects the shell. From then on the
	// group ID may be reused and must not be signalled.
	var (
		mu     sync.Mutex
		reaped bool
	)
	cmd.Cancel = func() error {
		mu.Lock()
		defer mu.Unlock()
		if reaped {
			return nil
		}
		return killGroup(cmd.Process)
	}
	cmd.WaitDelay = e.waitDelay

	start := time.Now()
	err := cmd.Start()
	if err == nil {
		// The exited shell stays a zombie until Wait, which keeps its PID
		// and group ID reserved while whatever it left behind is swept.
		if awaitExit(cmd.Process) {
			if kerr := killGroup(cmd.Process); kerr != nil {
				clog.Warn("executor: failed to kill process group %d: %v", cmd.Process.Pid, kerr)
			}
		}
		mu.Lock()
		reaped = true
		mu.Unlock()
		err = cmd.Wait()
	}
	elapsed := time.Since(start)

	if err != nil {
		if ctx.Err() != nil {
			return failed(fmt.Errorf("command cancelled: %w", ctx.Err()), elapsed)
		}
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return timedOut(timeout, elapsed)
		}
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) && !errors.Is(err, exec.ErrWaitDelay) {
			return failed(err, elapsed)
		}
	}

	code := -1
	if cmd.ProcessState != nil {
		code = cmd.ProcessState.ExitCode()
	}
	output, truncated := out.Result()
	return exited(code, strings.TrimSpace(output), truncated, elapsed)
}
