package toolforge

import (
	"context"
	"io"
	"sync"
)

// blockedReason is recorded for components whose prerequisite failed and
// which therefore never execute any step.
const blockedReason = "missing source/prerequisite"

// Orchestrator drives the phased build: within a phase every component
// runs concurrently, and a phase begins only after the previous one has
// fully settled. The step funcs are fields so tests can substitute
// recording fakes for the real download/extract/build machinery.
type Orchestrator struct {
	Catalog  []Component
	Phases   []PhaseSpec
	Board    *StatusBoard
	Resolver *Resolver
	Runner   *Runner
	Ledger   *Ledger
	RunLog   *RunLog

	Download func(ctx context.Context, comp *Component, version string, log io.Writer) error
	Extract  func(ctx context.Context, comp *Component, version string, log io.Writer) error
	Build    func(ctx context.Context, comp *Component, version string, log io.Writer) error
}

func NewOrchestrator(ctx context.Context, board *StatusBoard, runLog *RunLog) *Orchestrator {
	catalog := defaultCatalog()
	if err := applyCompatSet(catalog, CompatSet); err != nil {
		colWarn.Printf("%v, using latest\n", err)
	}
	ledger := NewLedger(Prefix, DownloadDir, SourceDir, StateDir)
	fetcher := NewFetcher()
	builder := NewBuilder(Prefix, SourceDir, MakeJobs)

	return &Orchestrator{
		Catalog:  catalog,
		Phases:   defaultPhases(),
		Board:    board,
		Resolver: NewResolver(board),
		Runner:   NewRunner(ctx, board, runLog, LogDir),
		Ledger:   ledger,
		RunLog:   runLog,
		Download: func(ctx context.Context, comp *Component, version string, log io.Writer) error {
			url := comp.SourceURL(version)
			dest := ledger.DownloadPath(comp, version)
			return fetcher.Fetch(ctx, url, dest, log)
		},
		Extract: func(ctx context.Context, comp *Component, version string, log io.Writer) error {
			return extractArchive(ctx, ledger.DownloadPath(comp, version), ledger.SourcePath(comp, version))
		},
		Build: func(ctx context.Context, comp *Component, version string, log io.Writer) error {
			return builder.Build(ctx, comp, version, log)
		},
	}
}

// Run executes every phase in order. Failures never abort the run; they
// propagate only through prerequisite blocking. The returned count is the
// number of components that failed or were blocked.
func (o *Orchestrator) Run(ctx context.Context) int {
	for _, phase := range o.Phases {
		if ctx.Err() != nil {
			break
		}
		o.RunLog.Printf("phase %s: starting %d component(s)", phase.Name, len(phase.Components))

		var wg sync.WaitGroup
		for _, name := range phase.Components {
			comp := findComponent(o.Catalog, name)
			if comp == nil {
				continue
			}
			wg.Add(1)
			go func(comp *Component) {
				defer wg.Done()
				o.runComponent(ctx, comp)
			}(comp)
		}
		wg.Wait()

		o.RunLog.Printf("phase %s: settled", phase.Name)
	}

	_, failed, _ := o.Board.Counts()
	return failed
}

// runComponent takes one component through download, extract, and build.
// Each step is skipped when its artifact already exists, which is what
// makes an interrupted run resumable.
func (o *Orchestrator) runComponent(ctx context.Context, comp *Component) {
	for _, need := range comp.Needs {
		if o.Board.Failed(need) {
			o.Board.Fail(comp.Name, "build", blockedReason)
			o.RunLog.Printf("%s: blocked, prerequisite %s failed", comp.Name, need)
			return
		}
	}

	res := o.Resolver.Resolve(comp)
	version := res.Version

	installed := func() bool { return o.Ledger.Installed(comp) }

	steps := []task{
		{
			component: comp.Name,
			step:      "download",
			state:     StateDownloading,
			skip:      func() bool { return installed() || o.Ledger.Downloaded(comp, version) },
			run: func(ctx context.Context, log io.Writer) error {
				return o.Download(ctx, comp, version, log)
			},
		},
		{
			component: comp.Name,
			step:      "extract",
			state:     StateExtracting,
			skip:      func() bool { return installed() || o.Ledger.Extracted(comp, version) },
			run: func(ctx context.Context, log io.Writer) error {
				return o.Extract(ctx, comp, version, log)
			},
		},
		{
			component: comp.Name,
			step:      "build",
			state:     StateBuilding,
			skip:      installed,
			run: func(ctx context.Context, log io.Writer) error {
				return o.Build(ctx, comp, version, log)
			},
		},
	}

	ranAny := false
	for _, t := range steps {
		result := o.Runner.Start(t).Join()
		switch result.Outcome {
		case OutcomeFailed:
			return
		case OutcomeSuccess:
			ranAny = true
			o.Ledger.MarkDone(t.step, comp, version)
		}
	}

	if ranAny {
		o.Board.Set(comp.Name, StateDone, "installed "+version)
	} else {
		o.Board.Set(comp.Name, StateSkipped, "already installed")
	}
}
