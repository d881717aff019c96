package toolforge

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"syscall"
	"time"
)

// Executor runs external build tools with context-based cancellation.
// Children are isolated in their own process group so that configure/make
// trees can be torn down as a unit: on cancellation the group first gets
// SIGTERM, then SIGKILL after the grace period.
type Executor struct {
	Context context.Context
	Stdout  io.Writer
	Stderr  io.Writer
	Grace   time.Duration
}

func NewExecutor(ctx context.Context, logWriter io.Writer) *Executor {
	return &Executor{
		Context: ctx,
		Stdout:  logWriter,
		Stderr:  logWriter,
		Grace:   terminationGrace,
	}
}

// Run executes the given command to completion.
func (e *Executor) Run(cmd *exec.Cmd) error {
	if cmd.Stdout == nil {
		cmd.Stdout = e.Stdout
	}
	if cmd.Stderr == nil {
		cmd.Stderr = e.Stderr
	}

	// Isolate the child in its own process group for cleanup.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", cmd.Path, err)
	}

	pgid := cmd.Process.Pid
	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case <-e.Context.Done():
			// Ask nicely first; escalate after the grace period.
			syscall.Kill(-pgid, syscall.SIGTERM)
			select {
			case <-time.After(e.grace()):
				syscall.Kill(-pgid, syscall.SIGKILL)
			case <-done:
			}
		case <-done:
		}
	}()

	if waitErr := cmd.Wait(); waitErr != nil {
		if e.Context.Err() != nil {
			return fmt.Errorf("command aborted: %w", e.Context.Err())
		}
		return waitErr
	}
	return nil
}

func (e *Executor) grace() time.Duration {
	if e.Grace > 0 {
		return e.Grace
	}
	return terminationGrace
}
