package toolforge

import (
	"fmt"
	"path/filepath"
	"strings"
)

// VersionSourceKind selects how a component's latest version is detected.
type VersionSourceKind int

const (
	// SourceGNUDir matches "name-X.Y.Z.tar" tokens in a GNU mirror directory listing.
	SourceGNUDir VersionSourceKind = iota
	// SourcePage applies a custom regexp against an arbitrary download page.
	SourcePage
	// SourcePinned performs no network probe and always yields the fallback.
	// Used for upstreams that rate-limit or render their pages with scripts.
	SourcePinned
)

// VersionSource describes where and how to detect a component's version.
type VersionSource struct {
	Kind    VersionSourceKind
	URL     string // listing or page URL; for SourceGNUDir this is "{mirror}/<dir>/"
	GNUDir  string // directory under the GNU mirror (SourceGNUDir only)
	Pattern string // regexp with the version in capture group 1 (SourcePage only)
}

// Command is a structured command descriptor: program plus argument list.
// Build steps never go through a shell.
type Command struct {
	Program string
	Args    []string
}

// Component identifies one buildable unit of the toolchain.
type Component struct {
	Name            string
	FallbackVersion string
	Source          VersionSource

	// URLTemplate and ArchiveTemplate use {version} placeholders.
	URLTemplate     string
	ArchiveTemplate string

	// Needs lists components in earlier phases whose failure blocks this one.
	Needs []string

	// ConfigureArgs is expanded with {prefix} and {version}. A nil slice
	// means the source has no configure script and goes straight to make.
	ConfigureArgs []string
	// MakeInstallArgs is appended to "make install" (e.g. bzip2's PREFIX=...).
	MakeInstallArgs []string
	// SeparateBuildDir builds out of tree in "<src>-build" (binutils, gcc, make, glibc).
	SeparateBuildDir bool
	// PreConfigure runs in the source dir before configure; failure is non-fatal.
	PreConfigure *Command

	// InstallCheck is a path relative to the prefix whose existence means
	// the component is already installed.
	InstallCheck string
	// Probe reports the installed version post-build (program relative to prefix).
	Probe *Command
}

// PhaseSpec is one dependency-ordered stage of the build.
type PhaseSpec struct {
	Name       string
	Components []string
}

// expand substitutes the template placeholders used across the catalog.
func expand(tmpl, version string) string {
	s := strings.ReplaceAll(tmpl, "{version}", version)
	s = strings.ReplaceAll(s, "{mirror}", gnuMirrorURL)
	return s
}

func expandArgs(args []string, prefix, version string) []string {
	out := make([]string, 0, len(args))
	for _, a := range args {
		a = strings.ReplaceAll(a, "{prefix}", prefix)
		a = strings.ReplaceAll(a, "{version}", version)
		out = append(out, a)
	}
	return out
}

// ArchiveName returns the archive filename for a resolved version.
func (c *Component) ArchiveName(version string) string {
	return expand(c.ArchiveTemplate, version)
}

// SourceURL returns the download URL for a resolved version.
func (c *Component) SourceURL(version string) string {
	return expand(c.URLTemplate, version)
}

// SrcDirName is the directory the archive extracts into.
func (c *Component) SrcDirName(version string) string {
	name := c.ArchiveName(version)
	for _, suf := range []string{".tar.gz", ".tar.xz", ".tar.bz2", ".tar.zst", ".tgz"} {
		if strings.HasSuffix(name, suf) {
			return strings.TrimSuffix(name, suf)
		}
	}
	return name
}

// Installed is the component's idempotency check: true iff the install
// artifact already exists under the prefix.
func (c *Component) Installed(prefix string) bool {
	return fileExists(filepath.Join(prefix, c.InstallCheck))
}

// defaultCatalog returns the static toolchain catalog. Fallback versions
// are the last known-good set and are used whenever detection fails.
func defaultCatalog() []Component {
	return []Component{
		{
			Name:            "zlib",
			FallbackVersion: "1.3.1",
			Source:          VersionSource{Kind: SourcePage, URL: "https://zlib.net/", Pattern: `zlib-(\d[\d.]*\d)\.tar\.gz`},
			URLTemplate:     "https://zlib.net/zlib-{version}.tar.gz",
			ArchiveTemplate: "zlib-{version}.tar.gz",
			ConfigureArgs:   []string{"--prefix={prefix}"},
			InstallCheck:    "include/zlib.h",
		},
		{
			Name:            "bzip2",
			FallbackVersion: "1.0.8",
			Source:          VersionSource{Kind: SourcePage, URL: "https://sourceware.org/pub/bzip2/", Pattern: `bzip2-(\d[\d.]*\d)\.tar\.gz`},
			URLTemplate:     "https://sourceware.org/pub/bzip2/bzip2-{version}.tar.gz",
			ArchiveTemplate: "bzip2-{version}.tar.gz",
			// bzip2 ships a plain Makefile, no configure script.
			MakeInstallArgs: []string{"PREFIX={prefix}"},
			InstallCheck:    "bin/bzip2",
		},
		{
			Name:            "xz",
			FallbackVersion: "5.6.2",
			Source:          VersionSource{Kind: SourcePinned},
			URLTemplate:     "https://tukaani.org/xz/xz-{version}.tar.gz",
			ArchiveTemplate: "xz-{version}.tar.gz",
			ConfigureArgs:   []string{"--prefix={prefix}", "--disable-nls"},
			InstallCheck:    "bin/xz",
			Probe:           &Command{Program: "bin/xz", Args: []string{"--version"}},
		},
		{
			Name:            "pkg-config",
			FallbackVersion: "0.29.2",
			Source:          VersionSource{Kind: SourcePage, URL: "https://pkgconfig.freedesktop.org/releases/", Pattern: `pkg-config-(\d[\d.]*\d)\.tar\.gz`},
			URLTemplate:     "https://pkgconfig.freedesktop.org/releases/pkg-config-{version}.tar.gz",
			ArchiveTemplate: "pkg-config-{version}.tar.gz",
			ConfigureArgs:   []string{"--prefix={prefix}", "--with-internal-glib"},
			InstallCheck:    "bin/pkg-config",
			Probe:           &Command{Program: "bin/pkg-config", Args: []string{"--version"}},
		},
		{
			Name:            "autoconf",
			FallbackVersion: "2.72",
			Source:          VersionSource{Kind: SourceGNUDir, GNUDir: "autoconf"},
			URLTemplate:     "{mirror}/autoconf/autoconf-{version}.tar.gz",
			ArchiveTemplate: "autoconf-{version}.tar.gz",
			ConfigureArgs:   []string{"--prefix={prefix}"},
			InstallCheck:    "bin/autoconf",
			Probe:           &Command{Program: "bin/autoconf", Args: []string{"--version"}},
		},
		{
			Name:            "automake",
			FallbackVersion: "1.17",
			Source:          VersionSource{Kind: SourceGNUDir, GNUDir: "automake"},
			URLTemplate:     "{mirror}/automake/automake-{version}.tar.gz",
			ArchiveTemplate: "automake-{version}.tar.gz",
			ConfigureArgs:   []string{"--prefix={prefix}"},
			InstallCheck:    "bin/automake",
			Probe:           &Command{Program: "bin/automake", Args: []string{"--version"}},
		},
		{
			Name:            "libtool",
			FallbackVersion: "2.4.7",
			Source:          VersionSource{Kind: SourceGNUDir, GNUDir: "libtool"},
			URLTemplate:     "{mirror}/libtool/libtool-{version}.tar.gz",
			ArchiveTemplate: "libtool-{version}.tar.gz",
			ConfigureArgs:   []string{"--prefix={prefix}"},
			InstallCheck:    "bin/libtool",
			Probe:           &Command{Program: "bin/libtool", Args: []string{"--version"}},
		},
		{
			Name:            "binutils",
			FallbackVersion: "2.43",
			Source:          VersionSource{Kind: SourceGNUDir, GNUDir: "binutils"},
			URLTemplate:     "{mirror}/binutils/binutils-{version}.tar.gz",
			ArchiveTemplate: "binutils-{version}.tar.gz",
			ConfigureArgs: []string{
				"--prefix={prefix}",
				"--disable-nls",
				"--disable-werror",
				"--enable-gold",
				"--enable-ld=default",
				"--enable-plugins",
				"--with-system-zlib",
			},
			SeparateBuildDir: true,
			InstallCheck:     "bin/ld",
			Probe:            &Command{Program: "bin/ld", Args: []string{"--version"}},
		},
		{
			Name:            "gcc-stage1",
			FallbackVersion: "14.2.0",
			Source:          VersionSource{Kind: SourceGNUDir, GNUDir: "gcc"},
			URLTemplate:     "{mirror}/gcc/gcc-{version}/gcc-{version}.tar.gz",
			ArchiveTemplate: "gcc-{version}.tar.gz",
			Needs:           []string{"binutils"},
			ConfigureArgs: []string{
				"--prefix={prefix}/stage1",
				"--with-ld={prefix}/bin/ld",
				"--with-as={prefix}/bin/as",
				"--disable-nls",
				"--enable-languages=c",
				"--disable-multilib",
				"--disable-bootstrap",
			},
			SeparateBuildDir: true,
			PreConfigure:     &Command{Program: "./contrib/download_prerequisites"},
			InstallCheck:     "stage1/bin/gcc",
			Probe:            &Command{Program: "stage1/bin/gcc", Args: []string{"--version"}},
		},
		{
			Name:            "glibc",
			FallbackVersion: "2.40",
			Source:          VersionSource{Kind: SourceGNUDir, GNUDir: "glibc"},
			URLTemplate:     "{mirror}/glibc/glibc-{version}.tar.gz",
			ArchiveTemplate: "glibc-{version}.tar.gz",
			Needs:           []string{"gcc-stage1"},
			ConfigureArgs: []string{
				"--prefix={prefix}",
				"--disable-werror",
			},
			SeparateBuildDir: true,
			InstallCheck:     "lib/libc.a",
			Probe:            &Command{Program: "bin/ldd", Args: []string{"--version"}},
		},
		{
			Name:            "gcc-stage2",
			FallbackVersion: "14.2.0",
			Source:          VersionSource{Kind: SourceGNUDir, GNUDir: "gcc"},
			URLTemplate:     "{mirror}/gcc/gcc-{version}/gcc-{version}.tar.gz",
			ArchiveTemplate: "gcc-{version}.tar.gz",
			Needs:           []string{"glibc"},
			ConfigureArgs: []string{
				"--prefix={prefix}",
				"--with-ld={prefix}/bin/ld",
				"--with-as={prefix}/bin/as",
				"--disable-nls",
				"--enable-languages=c,c++",
				"--disable-multilib",
				"--enable-default-pie",
				"--enable-default-ssp",
			},
			SeparateBuildDir: true,
			PreConfigure:     &Command{Program: "./contrib/download_prerequisites"},
			InstallCheck:     "bin/g++",
			Probe:            &Command{Program: "bin/gcc", Args: []string{"--version"}},
		},
		{
			Name:             "make",
			FallbackVersion:  "4.4.1",
			Source:           VersionSource{Kind: SourceGNUDir, GNUDir: "make"},
			URLTemplate:      "{mirror}/make/make-{version}.tar.gz",
			ArchiveTemplate:  "make-{version}.tar.gz",
			Needs:            []string{"glibc"},
			ConfigureArgs:    []string{"--prefix={prefix}", "--disable-nls"},
			SeparateBuildDir: true,
			InstallCheck:     "bin/make",
			Probe:            &Command{Program: "bin/make", Args: []string{"--version"}},
		},
		{
			Name:            "readline",
			FallbackVersion: "8.2",
			Source:          VersionSource{Kind: SourceGNUDir, GNUDir: "readline"},
			URLTemplate:     "{mirror}/readline/readline-{version}.tar.gz",
			ArchiveTemplate: "readline-{version}.tar.gz",
			Needs:           []string{"glibc"},
			ConfigureArgs:   []string{"--prefix={prefix}"},
			InstallCheck:    "include/readline/readline.h",
		},
	}
}

// defaultPhases partitions the catalog into the fixed dependency stages.
// gcc-stage1 and gcc-stage2 share one source archive; the download and
// extract steps of the later stage see the earlier stage's artifacts and skip.
func defaultPhases() []PhaseSpec {
	return []PhaseSpec{
		{Name: "independent", Components: []string{
			"zlib", "bzip2", "xz", "pkg-config", "autoconf", "automake", "libtool", "binutils",
		}},
		{Name: "stage1-compiler", Components: []string{"gcc-stage1"}},
		{Name: "core-library", Components: []string{"glibc"}},
		{Name: "stage2-compiler-and-tools", Components: []string{"gcc-stage2", "make", "readline"}},
	}
}

// findComponent returns the catalog entry with the given name, or nil.
func findComponent(catalog []Component, name string) *Component {
	for i := range catalog {
		if catalog[i].Name == name {
			return &catalog[i]
		}
	}
	return nil
}

// compatSets are the named compatibility version sets selectable via
// TOOLFORGE_COMPAT_SET. "latest" matches the catalog defaults; components
// a set does not mention keep their catalog fallbacks.
var compatSets = map[string]map[string]string{
	"latest": {
		"gcc":      "14.2.0",
		"binutils": "2.43",
		"make":     "4.4.1",
		"autoconf": "2.72",
		"automake": "1.17",
		"libtool":  "2.4.7",
	},
	"stable": {
		"gcc":      "13.3.0",
		"binutils": "2.42",
		"make":     "4.4.1",
		"autoconf": "2.71",
		"automake": "1.16.5",
		"libtool":  "2.4.7",
	},
	"legacy": {
		"gcc":      "11.4.0",
		"binutils": "2.40",
		"make":     "4.4",
		"autoconf": "2.71",
		"automake": "1.16.5",
		"libtool":  "2.4.6",
	},
}

// compatKey maps a component to its entry in the version sets; both gcc
// stages share the gcc version.
func compatKey(name string) string {
	name = strings.TrimSuffix(name, "-stage1")
	name = strings.TrimSuffix(name, "-stage2")
	return name
}

// applyCompatSet rewrites the catalog for the named set. A non-default
// set pins its components to the set's versions so detection cannot pull
// in a newer release than the set guarantees. Per-component env overrides
// still take precedence during resolution.
func applyCompatSet(catalog []Component, name string) error {
	if name == "" || name == "latest" {
		return nil
	}
	set, ok := compatSets[name]
	if !ok {
		return fmt.Errorf("unknown compatibility set %q", name)
	}
	for i := range catalog {
		v, ok := set[compatKey(catalog[i].Name)]
		if !ok {
			continue
		}
		catalog[i].FallbackVersion = v
		catalog[i].Source = VersionSource{Kind: SourcePinned}
	}
	return nil
}
