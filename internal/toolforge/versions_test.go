package toolforge

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompareVersions(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"2.41", "2.9", 1}, // numeric, not lexicographic
		{"2.9", "2.41", -1},
		{"14.2.0", "14.2.0", 0},
		{"1.0", "1.0.1", -1},
		{"10.0", "9.9", 1},
		{"2.72", "2.69", 1},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, compareVersions(c.a, c.b), "compare %s vs %s", c.a, c.b)
	}
}

func TestResolverDetectsHighestVersion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<a href="binutils-2.40.tar.gz">binutils-2.40.tar.gz</a>
<a href="binutils-2.43.tar.gz">binutils-2.43.tar.gz</a>
<a href="binutils-2.9.tar.gz">binutils-2.9.tar.gz</a>`)
	}))
	defer srv.Close()

	comp := &Component{
		Name:            "binutils",
		FallbackVersion: "2.38",
		Source:          VersionSource{Kind: SourceGNUDir, GNUDir: "binutils", URL: srv.URL},
		URLTemplate:     "{mirror}/binutils/binutils-{version}.tar.gz",
		ArchiveTemplate: "binutils-{version}.tar.gz",
	}

	board := NewStatusBoard([]string{"binutils"})
	r := NewResolver(board)
	res := r.Resolve(comp)

	assert.Equal(t, "2.43", res.Version)
	assert.Equal(t, "detected", res.Origin)
	assert.Empty(t, board.Failures())
}

func TestResolverFallsBackWhenDetectionFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	comp := &Component{
		Name:            "make",
		FallbackVersion: "4.4.1",
		Source:          VersionSource{Kind: SourceGNUDir, GNUDir: "make", URL: srv.URL},
		URLTemplate:     "{mirror}/make/make-{version}.tar.gz",
		ArchiveTemplate: "make-{version}.tar.gz",
	}

	board := NewStatusBoard([]string{"make"})
	r := NewResolver(board)
	res := r.Resolve(comp)

	assert.Equal(t, "4.4.1", res.Version)
	assert.Equal(t, "fallback", res.Origin)

	failures := board.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, "make", failures[0].Component)
	assert.Equal(t, "version detection", failures[0].Operation)

	// Detection failure must not fail the component itself.
	entry, ok := board.Get("make")
	require.True(t, ok)
	assert.NotEqual(t, StateFailed, entry.State)
}

func TestResolverCachesPerRun(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, "gcc-14.2.0.tar.gz")
	}))
	defer srv.Close()

	comp := &Component{
		Name:            "gcc",
		FallbackVersion: "13.2.0",
		Source:          VersionSource{Kind: SourceGNUDir, GNUDir: "gcc", URL: srv.URL},
		URLTemplate:     "{mirror}/gcc/gcc-{version}/gcc-{version}.tar.gz",
		ArchiveTemplate: "gcc-{version}.tar.gz",
	}

	board := NewStatusBoard([]string{"gcc"})
	r := NewResolver(board)

	first := r.Resolve(comp)
	second := r.Resolve(comp)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), hits.Load())
}

func TestResolverPinnedSkipsNetwork(t *testing.T) {
	comp := &Component{
		Name:            "xz",
		FallbackVersion: "5.6.2",
		Source:          VersionSource{Kind: SourcePinned},
		URLTemplate:     "https://example.org/xz-{version}.tar.gz",
		ArchiveTemplate: "xz-{version}.tar.gz",
	}

	board := NewStatusBoard([]string{"xz"})
	r := NewResolver(board)
	r.Client = nil // any network use would panic

	res := r.Resolve(comp)
	assert.Equal(t, "5.6.2", res.Version)
	assert.Equal(t, "pinned", res.Origin)
	assert.Equal(t, "https://example.org/xz-5.6.2.tar.gz", res.URL)
}

func TestResolverEnvOverride(t *testing.T) {
	t.Setenv("TOOLFORGE_VERSION_GCC_STAGE1", "13.3.0")

	comp := &Component{
		Name:            "gcc-stage1",
		FallbackVersion: "14.2.0",
		Source:          VersionSource{Kind: SourceGNUDir, GNUDir: "gcc"},
		URLTemplate:     "{mirror}/gcc/gcc-{version}/gcc-{version}.tar.gz",
		ArchiveTemplate: "gcc-{version}.tar.gz",
	}

	board := NewStatusBoard([]string{"gcc-stage1"})
	r := NewResolver(board)

	res := r.Resolve(comp)
	assert.Equal(t, "13.3.0", res.Version)
	assert.Equal(t, "override", res.Origin)
}

func TestResolutionsSortedByComponent(t *testing.T) {
	names := []string{"zlib", "autoconf", "make", "bzip2"}
	board := NewStatusBoard(names)
	r := NewResolver(board)

	for _, name := range names {
		r.Resolve(&Component{
			Name:            name,
			FallbackVersion: "1.0",
			Source:          VersionSource{Kind: SourcePinned},
		})
	}

	got := r.Resolutions()
	require.Len(t, got, len(names))
	for i := 1; i < len(got); i++ {
		assert.Less(t, got[i-1].Component, got[i].Component)
	}
}
