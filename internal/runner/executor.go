// Package runner launches external commands (git, configure, make, cp) for
// the build pipeline. Every invocation is drained and waited for before the
// next one starts.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/kballard/go-shellquote"
	"github.com/rs/zerolog"
)

// Executor provides a consistent interface for executing commands,
// adding cancellation, a per-command timeout and process group cleanup.
type Executor struct {
	Context context.Context // The context to use for cancellation
	Timeout time.Duration   // Upper bound for a single command; zero disables it
	Sink    io.Writer       // Sink for stdout/stderr when the command does not set its own
	Logger  zerolog.Logger
}

func NewExecutor(ctx context.Context, logger zerolog.Logger) *Executor {
	return &Executor{Context: ctx, Logger: logger}
}

// Run executes the given command. Stdio defaults to e.Sink (or the
// process stdio), the child is isolated in its own process group, and the
// whole group is killed when the context ends.
func (e *Executor) Run(cmd *exec.Cmd) error {
	if cmd.Err != nil {
		return cmd.Err
	}

	ctx := e.Context
	if ctx == nil {
		ctx = context.Background()
	}
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	// --- Phase 1: build the final command ---
	finalCmd := exec.CommandContext(ctx, cmd.Path, cmd.Args[1:]...)
	finalCmd.Dir = cmd.Dir

	// preserve or inherit the environment
	if len(cmd.Env) > 0 {
		finalCmd.Env = cmd.Env
	} else {
		finalCmd.Env = os.Environ()
	}

	finalCmd.Stdin = cmd.Stdin
	finalCmd.Stdout = cmd.Stdout
	finalCmd.Stderr = cmd.Stderr
	if finalCmd.Stdout == nil {
		finalCmd.Stdout = e.sink(os.Stdout)
	}
	if finalCmd.Stderr == nil {
		finalCmd.Stderr = e.sink(os.Stderr)
	}

	e.Logger.Debug().
		Str("cmd", shellquote.Join(cmd.Args...)).
		Str("dir", cmd.Dir).
		Msg("exec")

	// --- Phase 2: isolate process group for context-based cleanup ---
	setProcessGroup(finalCmd)

	// --- Phase 3: start and watch for cancel ---
	if err := finalCmd.Start(); err != nil {
		return fmt.Errorf("failed to start command: %w", err)
	}

	pid := finalCmd.Process.Pid
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			killProcessGroup(pid)
		case <-done:
		}
	}()

	// --- Phase 4: wait and return ---
	if waitErr := finalCmd.Wait(); waitErr != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("command aborted: %w", ctx.Err())
		}
		return waitErr
	}
	return nil
}

// Output runs cmd and returns its stdout. Stderr goes to the executor sink.
func (e *Executor) Output(cmd *exec.Cmd) ([]byte, error) {
	var out bytes.Buffer
	cmd.Stdout = &out
	err := e.Run(cmd)
	return out.Bytes(), err
}

func (e *Executor) sink(fallback io.Writer) io.Writer {
	if e.Sink != nil {
		return e.Sink
	}
	return fallback
}

// ExitCode extracts the exit status of a finished command, or -1.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
