package toolforge

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gookit/color"
)

// printHelp prints the commands table
func printHelp() {
	colSuccess.Println("Usage: toolforge [command] [options]")
	colSuccess.Println("Running with no command builds the full toolchain")
	fmt.Println()
	color.Info.Println("Available Commands:")

	type cmdInfo struct {
		Cmd  string
		Desc string
	}
	cmds := []cmdInfo{
		{"run", "Build the toolchain (default when no command given)"},
		{"log", "TUI log viewer"},
		{"versions", "Detect and print component versions without building"},
		{"mirrors", "Benchmark GNU mirrors and cache the fastest"},
		{"version, --version", "Version information"},
		{"help, -h", "Show this help"},
	}

	maxLen := 0
	for _, c := range cmds {
		if len(c.Cmd) > maxLen {
			maxLen = len(c.Cmd)
		}
	}
	for _, c := range cmds {
		fmt.Print("  ")
		color.Bold.Print(c.Cmd)
		fmt.Print(strings.Repeat(" ", maxLen-len(c.Cmd)+4))
		color.Info.Println(c.Desc)
	}
	fmt.Println()
}

// splitCommand separates the command word from the remaining arguments.
// Help and version flags are recognized even in flag position, so
// "toolforge --version" never falls through to the run flag set. Any
// other leading flag means the implicit run command.
func splitCommand(args []string) (string, []string) {
	if len(args) == 0 {
		return "run", nil
	}
	switch args[0] {
	case "help", "-h", "--help":
		return "help", args[1:]
	case "version", "--version":
		return "version", args[1:]
	}
	if strings.HasPrefix(args[0], "-") {
		return "run", args
	}
	return args[0], args[1:]
}

// Main is the CLI entrypoint for the toolforge binary.
func Main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)

	go func() {
		for {
			select {
			case sig := <-sigs:
				if isCriticalAtomic.Load() == 1 {
					colArrow.Print("\n-> ")
					colError.Printf("Writing manifests. Press Ctrl+C AGAIN to force exit NOW.\n")
					select {
					case <-sigs:
						colArrow.Print("\n-> ")
						colError.Printf("Forced immediate exit.")
						os.Exit(130)
					case <-time.After(5 * time.Second):
						continue
					case <-ctx.Done():
						return
					}
				} else {
					colArrow.Print("\n-> ")
					color.Danger.Printf("Received %v. Cancelling build gracefully\n", sig)
					cancel()
					time.Sleep(100 * time.Millisecond)
					select {
					case <-sigs:
						colArrow.Print("\n-> ")
						color.Danger.Printf("Second interrupt received. Forcing immediate exit.")
						os.Exit(130)
					case <-time.After(terminationGrace + 2*time.Second):
						colArrow.Print("\n-> ")
						color.Danger.Printf("Graceful shutdown timeout. Exiting.")
						os.Exit(130)
					}
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	cmd, args := splitCommand(os.Args[1:])

	fs := flag.NewFlagSet("toolforge", flag.ExitOnError)
	prefixFlag := fs.String("prefix", "", "install prefix (default ~/tools)")
	jobsFlag := fs.Int("jobs", 0, "parallel make jobs (default: CPU count)")
	debugFlag := fs.Bool("debug", false, "verbose debug output")
	fs.Parse(args)

	cfg, err := loadConfig(expandHome(ConfigFile))
	if err != nil {
		cPrintf(colWarn, "config load: %v\n", err)
	}
	if *prefixFlag != "" {
		cfg.Values["TOOLFORGE_PREFIX"] = *prefixFlag
	}
	if *jobsFlag > 0 {
		cfg.Values["TOOLFORGE_JOBS"] = fmt.Sprintf("%d", *jobsFlag)
	}
	if *debugFlag {
		cfg.Values["TOOLFORGE_DEBUG"] = "1"
	}
	initConfig(cfg)

	switch cmd {
	case "run":
		os.Exit(cmdRun(ctx))
	case "log":
		os.Exit(runLogViewer())
	case "versions":
		os.Exit(cmdVersions())
	case "mirrors":
		os.Exit(cmdMirrors())
	case "version":
		fmt.Printf("toolforge %s (built %s)\n", version, buildDate)
	case "help":
		printHelp()
	default:
		cPrintf(colError, "Unknown command: %s\n", cmd)
		printHelp()
		os.Exit(1)
	}
}

// cmdRun executes the full phased build and returns the process exit code.
func cmdRun(ctx context.Context) int {
	if err := ensureWorkDirs(); err != nil {
		cPrintf(colError, "Cannot create working directories: %v\n", err)
		return 1
	}

	// Pick the mirror before anything resolves versions against it. An
	// explicitly configured mirror skips the benchmark.
	if !mirrorPinned {
		gnuMirrorURL = selectMirror(os.Stdout)
	}

	runLog, err := openRunLog(LogDir)
	if err != nil {
		cPrintf(colError, "Cannot open run log: %v\n", err)
		return 1
	}
	defer runLog.Close()
	runLog.Printf("run started, prefix=%s jobs=%d mirror=%s", Prefix, MakeJobs, gnuMirrorURL)

	catalog := defaultCatalog()
	names := make([]string, 0, len(catalog))
	for i := range catalog {
		names = append(names, catalog[i].Name)
	}
	board := NewStatusBoard(names)

	orch := NewOrchestrator(ctx, board, runLog)

	colArrow.Print("-> ")
	colSuccess.Printf("Building %d components into %s (%d jobs)\n", len(names), Prefix, MakeJobs)

	displayCtx, stopDisplay := context.WithCancel(context.Background())
	displayDone := make(chan struct{})
	display := NewDisplay(board)
	go func() {
		defer close(displayDone)
		display.Loop(displayCtx)
	}()

	failed := orch.Run(ctx)

	stopDisplay()
	<-displayDone

	// Manifests and the shell profile describe whatever succeeded, even
	// on a partially failed or cancelled run.
	isCriticalAtomic.Store(1)
	if err := writeVersionsManifest(orch.Resolver.Resolutions(), orch.Catalog, orch.Ledger); err != nil {
		cPrintf(colWarn, "versions manifest: %v\n", err)
	}
	if err := writeInstalledManifest(orch.Catalog, Prefix); err != nil {
		cPrintf(colWarn, "installed manifest: %v\n", err)
	}
	if err := updateProfile(ProfileFile, Prefix); err != nil {
		cPrintf(colWarn, "shell profile: %v\n", err)
	}
	isCriticalAtomic.Store(0)
	orch.Ledger.Close()

	printSummary(board, orch.Resolver)
	runLog.Printf("run finished, %d component(s) failed or blocked", failed)
	cPrintf(colNote, "Run log: %s\n", runLog.Path)

	if ctx.Err() != nil {
		return 130
	}
	if failed > 0 {
		return 1
	}
	return 0
}

// cmdVersions resolves every component version and prints the table.
func cmdVersions() int {
	if err := ensureWorkDirs(); err != nil {
		cPrintf(colError, "Cannot create working directories: %v\n", err)
		return 1
	}
	if !mirrorPinned {
		gnuMirrorURL = selectMirror(os.Stdout)
	}

	catalog := defaultCatalog()
	if err := applyCompatSet(catalog, CompatSet); err != nil {
		cPrintf(colWarn, "%v, using latest\n", err)
	}
	names := make([]string, 0, len(catalog))
	for i := range catalog {
		names = append(names, catalog[i].Name)
	}
	board := NewStatusBoard(names)
	resolver := NewResolver(board)

	for i := range catalog {
		res := resolver.Resolve(&catalog[i])
		colArrow.Print("-> ")
		colSuccess.Printf("%-12s %-10s (%s)\n", res.Component, res.Version, res.Origin)
	}

	for _, f := range board.Failures() {
		cPrintf(colWarn, "  %s: %s: %s\n", f.Component, f.Operation, f.Reason)
	}
	return 0
}

// cmdMirrors forces a fresh benchmark, ignoring the cache.
func cmdMirrors() int {
	if err := ensureWorkDirs(); err != nil {
		cPrintf(colError, "Cannot create working directories: %v\n", err)
		return 1
	}
	benchmarkMirrors(os.Stdout)
	return 0
}
