package toolforge

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRunner(t *testing.T) (*Runner, *StatusBoard, string) {
	t.Helper()
	logDir := t.TempDir()
	board := NewStatusBoard([]string{"alpha"})
	return NewRunner(context.Background(), board, nil, logDir), board, logDir
}

func TestRunnerSuccess(t *testing.T) {
	r, board, logDir := newTestRunner(t)

	h := r.Start(task{
		component: "alpha",
		step:      "build",
		state:     StateBuilding,
		run: func(ctx context.Context, log io.Writer) error {
			io.WriteString(log, "building things\n")
			return nil
		},
	})
	res := h.Join()

	assert.Equal(t, OutcomeSuccess, res.Outcome)
	assert.NoError(t, res.Err)
	assert.Empty(t, board.Failures())

	// A successful task's log is compressed in place.
	assert.NoFileExists(t, filepath.Join(logDir, "build-alpha.log"))
	assert.FileExists(t, filepath.Join(logDir, "build-alpha.log.xz"))
}

func TestRunnerFailureRecordsOnBoard(t *testing.T) {
	r, board, logDir := newTestRunner(t)

	h := r.Start(task{
		component: "alpha",
		step:      "extract",
		state:     StateExtracting,
		run: func(ctx context.Context, log io.Writer) error {
			return errors.New("corrupt archive")
		},
	})
	res := h.Join()

	assert.Equal(t, OutcomeFailed, res.Outcome)
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "corrupt archive")

	entry, ok := board.Get("alpha")
	require.True(t, ok)
	assert.Equal(t, StateFailed, entry.State)

	failures := board.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, "extract", failures[0].Operation)

	// Failed logs stay uncompressed for inspection.
	data, err := os.ReadFile(filepath.Join(logDir, "extract-alpha.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "failed: corrupt archive")
}

func TestRunnerSkip(t *testing.T) {
	r, board, logDir := newTestRunner(t)

	ran := false
	res := r.Start(task{
		component: "alpha",
		step:      "download",
		state:     StateDownloading,
		skip:      func() bool { return true },
		run: func(ctx context.Context, log io.Writer) error {
			ran = true
			return nil
		},
	}).Join()

	assert.Equal(t, OutcomeSkipped, res.Outcome)
	assert.False(t, ran)

	entry, _ := board.Get("alpha")
	assert.Equal(t, StateSkipped, entry.State)

	// Skipped tasks open no log at all.
	assert.NoFileExists(t, filepath.Join(logDir, "download-alpha.log"))
	assert.NoFileExists(t, filepath.Join(logDir, "download-alpha.log.xz"))
}

func TestHandlePollAndJoin(t *testing.T) {
	r, _, _ := newTestRunner(t)

	release := make(chan struct{})
	h := r.Start(task{
		component: "alpha",
		step:      "build",
		state:     StateBuilding,
		run: func(ctx context.Context, log io.Writer) error {
			<-release
			return nil
		},
	})

	assert.False(t, h.Poll())
	assert.Equal(t, 1, r.LiveCount())

	close(release)
	res := h.Join()
	assert.Equal(t, OutcomeSuccess, res.Outcome)
	assert.True(t, h.Poll())

	// The handle is released once the goroutine winds down.
	assert.Eventually(t, func() bool { return r.LiveCount() == 0 },
		time.Second, 10*time.Millisecond)
}
