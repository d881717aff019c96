package toolforge

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Builder runs the configure/make/install sequence for one component.
// Every command's stdout and stderr go to the task log, never to the
// terminal.
type Builder struct {
	Prefix    string
	SourceDir string
	Jobs      int
}

func NewBuilder(prefix, sourceDir string, jobs int) *Builder {
	return &Builder{Prefix: prefix, SourceDir: sourceDir, Jobs: jobs}
}

// env returns the build environment. The install prefix's bin directories
// are layered onto PATH so later components pick up the tools built by
// earlier phases (the stage1 compiler in particular).
func (b *Builder) env() []string {
	path := filepath.Join(b.Prefix, "bin") +
		":" + filepath.Join(b.Prefix, "stage1", "bin") +
		":" + os.Getenv("PATH")
	env := make([]string, 0, len(os.Environ())+2)
	for _, e := range os.Environ() {
		if strings.HasPrefix(e, "PATH=") || strings.HasPrefix(e, "MAKEFLAGS=") {
			continue
		}
		env = append(env, e)
	}
	env = append(env, "PATH="+path, fmt.Sprintf("MAKEFLAGS=-j%d", b.Jobs))
	return env
}

// Build compiles and installs the component from its extracted source
// tree. Errors name the failing step so the status board can show which
// of configure, make, or install broke.
func (b *Builder) Build(ctx context.Context, comp *Component, version string, log io.Writer) error {
	srcDir := filepath.Join(b.SourceDir, comp.SrcDirName(version))
	if !dirExists(srcDir) {
		return fmt.Errorf("source tree %s does not exist", srcDir)
	}

	buildDir := srcDir
	if comp.SeparateBuildDir {
		buildDir = srcDir + "-build"
		if err := os.MkdirAll(buildDir, 0o755); err != nil {
			return fmt.Errorf("failed to create build directory %s: %w", buildDir, err)
		}
	}

	exe := NewExecutor(ctx, log)
	env := b.env()

	run := func(dir, step string, program string, args ...string) error {
		fmt.Fprintf(log, "---- %s: %s %s\n", step, program, strings.Join(args, " "))
		cmd := exec.Command(program, args...)
		cmd.Dir = dir
		cmd.Env = env
		if err := exe.Run(cmd); err != nil {
			return fmt.Errorf("%s failed: %w", step, err)
		}
		return nil
	}

	// Pre-configure hooks (gcc fetches gmp/mpfr/mpc here) run in the
	// source tree and are allowed to fail: configure copes without them
	// when the libraries are present on the system.
	if comp.PreConfigure != nil {
		if err := run(srcDir, "pre-configure", comp.PreConfigure.Program, comp.PreConfigure.Args...); err != nil {
			fmt.Fprintf(log, "---- pre-configure failed, continuing: %v\n", err)
		}
	}

	if comp.ConfigureArgs != nil {
		args := expandArgs(comp.ConfigureArgs, b.Prefix, version)
		configure := filepath.Join(srcDir, "configure")
		if err := run(buildDir, "configure", configure, args...); err != nil {
			return err
		}
	}

	if err := run(buildDir, "make", "make", fmt.Sprintf("-j%d", b.Jobs)); err != nil {
		return err
	}

	installArgs := append([]string{"install"}, expandArgs(comp.MakeInstallArgs, b.Prefix, version)...)
	if err := run(buildDir, "make install", "make", installArgs...); err != nil {
		return err
	}

	if !comp.Installed(b.Prefix) {
		return fmt.Errorf("install completed but %s is missing", filepath.Join(b.Prefix, comp.InstallCheck))
	}
	return nil
}
