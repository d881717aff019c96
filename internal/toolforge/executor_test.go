package toolforge

import (
	"context"
	"io"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutorRunsToCompletion(t *testing.T) {
	e := NewExecutor(context.Background(), io.Discard)
	err := e.Run(exec.Command("true"))
	assert.NoError(t, err)
}

func TestExecutorReportsCommandFailure(t *testing.T) {
	e := NewExecutor(context.Background(), io.Discard)
	err := e.Run(exec.Command("false"))
	require.Error(t, err)
	// A plain command failure is not dressed up as a cancellation.
	assert.NotContains(t, err.Error(), "command aborted")
}

func TestExecutorTerminatesChildOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	e := NewExecutor(ctx, io.Discard)
	e.Grace = 10 * time.Second

	cmd := exec.Command("sleep", "30")
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := e.Run(cmd)
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Contains(t, err.Error(), "command aborted")
	// sleep responds to SIGTERM, so it dies long before the grace window.
	assert.Less(t, elapsed, 5*time.Second)
}

func TestExecutorEscalatesToKillAfterGrace(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	e := NewExecutor(ctx, io.Discard)
	e.Grace = 300 * time.Millisecond

	// The shell ignores SIGTERM and keeps looping; only the SIGKILL sent
	// after the grace period can take it down.
	cmd := exec.Command("sh", "-c", `trap '' TERM; while :; do sleep 0.05; done`)
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := e.Run(cmd)
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	// Still alive through the grace window, dead shortly after.
	assert.GreaterOrEqual(t, elapsed, 400*time.Millisecond)
	assert.Less(t, elapsed, 5*time.Second)
}
