package toolforge

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stepRecorder captures the order in which injected steps ran.
type stepRecorder struct {
	mu    sync.Mutex
	steps []string
}

func (r *stepRecorder) record(step, component string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps = append(r.steps, step+":"+component)
}

func (r *stepRecorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.steps))
	copy(out, r.steps)
	return out
}

func (r *stepRecorder) indexOf(entry string) int {
	for i, s := range r.all() {
		if s == entry {
			return i
		}
	}
	return -1
}

func testComponent(name string, needs ...string) Component {
	return Component{
		Name:            name,
		FallbackVersion: "1.0",
		Source:          VersionSource{Kind: SourcePinned},
		URLTemplate:     "https://example.org/" + name + "-{version}.tar.gz",
		ArchiveTemplate: name + "-{version}.tar.gz",
		Needs:           needs,
		InstallCheck:    filepath.Join("marker", name),
	}
}

func newTestOrchestrator(t *testing.T, catalog []Component, phases []PhaseSpec) (*Orchestrator, *StatusBoard, string) {
	t.Helper()
	root := t.TempDir()
	prefix := filepath.Join(root, "prefix")
	logDir := filepath.Join(root, "logs")
	require.NoError(t, os.MkdirAll(logDir, 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(prefix, "marker"), 0o755))

	names := make([]string, 0, len(catalog))
	for i := range catalog {
		names = append(names, catalog[i].Name)
	}
	board := NewStatusBoard(names)

	o := &Orchestrator{
		Catalog:  catalog,
		Phases:   phases,
		Board:    board,
		Resolver: NewResolver(board),
		Runner:   NewRunner(context.Background(), board, nil, logDir),
		Ledger:   NewLedger(prefix, filepath.Join(root, "downloads"), filepath.Join(root, "sources"), ""),
		RunLog:   nil,
	}
	return o, board, prefix
}

// markInstalled creates the component's install check file so every step skips.
func markInstalled(t *testing.T, prefix, name string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(prefix, "marker", name), nil, 0o644))
}

func TestOrchestratorRunsPhasesInOrder(t *testing.T) {
	catalog := []Component{
		testComponent("alpha"),
		testComponent("beta"),
		testComponent("gamma", "alpha"),
	}
	phases := []PhaseSpec{
		{Name: "first", Components: []string{"alpha", "beta"}},
		{Name: "second", Components: []string{"gamma"}},
	}

	o, board, prefix := newTestOrchestrator(t, catalog, phases)
	rec := &stepRecorder{}

	o.Download = func(ctx context.Context, comp *Component, version string, log io.Writer) error {
		rec.record("download", comp.Name)
		return nil
	}
	o.Extract = func(ctx context.Context, comp *Component, version string, log io.Writer) error {
		rec.record("extract", comp.Name)
		return nil
	}
	o.Build = func(ctx context.Context, comp *Component, version string, log io.Writer) error {
		// alpha is deliberately slow; gamma must still wait for it.
		if comp.Name == "alpha" {
			time.Sleep(50 * time.Millisecond)
		}
		rec.record("build", comp.Name)
		markInstalled(t, prefix, comp.Name)
		return nil
	}

	failed := o.Run(context.Background())
	assert.Zero(t, failed)

	for _, name := range []string{"alpha", "beta", "gamma"} {
		entry, ok := board.Get(name)
		require.True(t, ok)
		assert.Equal(t, StateDone, entry.State, name)
	}

	// Phase two starts only after phase one fully settles.
	assert.Greater(t, rec.indexOf("download:gamma"), rec.indexOf("build:alpha"))
	assert.Greater(t, rec.indexOf("download:gamma"), rec.indexOf("build:beta"))
}

func TestOrchestratorBlocksDependentsOfFailedPrerequisite(t *testing.T) {
	catalog := []Component{
		testComponent("alpha"),
		testComponent("beta"),
		testComponent("gamma", "alpha"),
		testComponent("delta", "beta"),
	}
	phases := []PhaseSpec{
		{Name: "first", Components: []string{"alpha", "beta"}},
		{Name: "second", Components: []string{"gamma", "delta"}},
	}

	o, board, prefix := newTestOrchestrator(t, catalog, phases)
	rec := &stepRecorder{}

	o.Download = func(ctx context.Context, comp *Component, version string, log io.Writer) error {
		if comp.Name == "alpha" {
			return errors.New("boom")
		}
		rec.record("download", comp.Name)
		return nil
	}
	o.Extract = func(ctx context.Context, comp *Component, version string, log io.Writer) error {
		rec.record("extract", comp.Name)
		return nil
	}
	o.Build = func(ctx context.Context, comp *Component, version string, log io.Writer) error {
		rec.record("build", comp.Name)
		markInstalled(t, prefix, comp.Name)
		return nil
	}

	failed := o.Run(context.Background())
	assert.Equal(t, 2, failed)

	// alpha failed in its own download step.
	entry, _ := board.Get("alpha")
	assert.Equal(t, StateFailed, entry.State)

	// gamma was blocked and never ran a single step.
	entry, _ = board.Get("gamma")
	assert.Equal(t, StateFailed, entry.State)
	assert.Equal(t, blockedReason, entry.Detail)
	assert.Equal(t, -1, rec.indexOf("download:gamma"))

	// delta's prerequisite succeeded, so the sibling failure touched nothing.
	entry, _ = board.Get("delta")
	assert.Equal(t, StateDone, entry.State)

	var blockedReasons []string
	for _, f := range board.Failures() {
		if f.Component == "gamma" {
			blockedReasons = append(blockedReasons, f.Reason)
		}
	}
	assert.Equal(t, []string{blockedReason}, blockedReasons)
}

func TestOrchestratorSkipsInstalledComponents(t *testing.T) {
	catalog := []Component{testComponent("alpha"), testComponent("beta")}
	phases := []PhaseSpec{{Name: "only", Components: []string{"alpha", "beta"}}}

	o, board, prefix := newTestOrchestrator(t, catalog, phases)
	markInstalled(t, prefix, "alpha")
	markInstalled(t, prefix, "beta")

	called := false
	fail := func(ctx context.Context, comp *Component, version string, log io.Writer) error {
		called = true
		return errors.New("should not run")
	}
	o.Download, o.Extract, o.Build = fail, fail, fail

	failed := o.Run(context.Background())
	assert.Zero(t, failed)
	assert.False(t, called)

	for _, name := range []string{"alpha", "beta"} {
		entry, _ := board.Get(name)
		assert.Equal(t, StateSkipped, entry.State, name)
	}
}

func TestOrchestratorResumesFromExistingArtifacts(t *testing.T) {
	catalog := []Component{testComponent("alpha")}
	phases := []PhaseSpec{{Name: "only", Components: []string{"alpha"}}}

	o, board, prefix := newTestOrchestrator(t, catalog, phases)

	// Simulate a previous run that downloaded and extracted but was
	// interrupted before the build finished.
	comp := &o.Catalog[0]
	require.NoError(t, os.MkdirAll(o.Ledger.DownloadDir, 0o755))
	require.NoError(t, os.WriteFile(o.Ledger.DownloadPath(comp, "1.0"), []byte("tar"), 0o644))
	require.NoError(t, os.MkdirAll(o.Ledger.SourcePath(comp, "1.0"), 0o755))

	rec := &stepRecorder{}
	o.Download = func(ctx context.Context, comp *Component, version string, log io.Writer) error {
		rec.record("download", comp.Name)
		return nil
	}
	o.Extract = func(ctx context.Context, comp *Component, version string, log io.Writer) error {
		rec.record("extract", comp.Name)
		return nil
	}
	o.Build = func(ctx context.Context, comp *Component, version string, log io.Writer) error {
		rec.record("build", comp.Name)
		markInstalled(t, prefix, comp.Name)
		return nil
	}

	failed := o.Run(context.Background())
	assert.Zero(t, failed)

	assert.Equal(t, []string{"build:alpha"}, rec.all())
	entry, _ := board.Get("alpha")
	assert.Equal(t, StateDone, entry.State)
}
