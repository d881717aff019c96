package toolforge

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Resolution records how a component's version was obtained.
type Resolution struct {
	Component string
	Version   string
	Origin    string // "detected", "fallback", "pinned", "override"
	URL       string
}

// Resolver detects component versions from upstream listings with a
// per-run cache and a static fallback for every component. Resolve never
// fails: a missing network path degrades to the fallback version.
type Resolver struct {
	Client *http.Client
	Board  *StatusBoard

	mu    sync.Mutex
	cache map[string]Resolution
}

func NewResolver(board *StatusBoard) *Resolver {
	return &Resolver{
		Client: &http.Client{Timeout: 30 * time.Second},
		Board:  board,
		cache:  make(map[string]Resolution),
	}
}

// Resolve returns the version to use for a component. The first call per
// component probes the network (unless pinned or overridden); later calls
// hit the cache. Within a run a cached value is never invalidated.
func (r *Resolver) Resolve(comp *Component) Resolution {
	r.mu.Lock()
	if res, ok := r.cache[comp.Name]; ok {
		r.mu.Unlock()
		return res
	}
	r.mu.Unlock()

	res := r.resolveUncached(comp)
	res.URL = comp.SourceURL(res.Version)

	r.mu.Lock()
	r.cache[comp.Name] = res
	r.mu.Unlock()
	return res
}

// Resolutions returns the cached resolutions sorted by component name.
func (r *Resolver) Resolutions() []Resolution {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Resolution, 0, len(r.cache))
	for _, res := range r.cache {
		out = append(out, res)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Component < out[j].Component })
	return out
}

func (r *Resolver) resolveUncached(comp *Component) Resolution {
	if v := versionOverride(comp.Name); v != "" {
		r.Board.Set(comp.Name, StatePending, fmt.Sprintf("version %s (override)", v))
		return Resolution{Component: comp.Name, Version: v, Origin: "override"}
	}

	if comp.Source.Kind == SourcePinned {
		r.Board.Set(comp.Name, StatePending, fmt.Sprintf("version %s (pinned)", comp.FallbackVersion))
		return Resolution{Component: comp.Name, Version: comp.FallbackVersion, Origin: "pinned"}
	}

	r.Board.Set(comp.Name, StateDetecting, "probing upstream")

	version, err := r.detect(comp)
	if err != nil {
		r.Board.RecordFailure(comp.Name, "version detection", err.Error())
		r.Board.Set(comp.Name, StatePending,
			fmt.Sprintf("detection failed, using fallback %s", comp.FallbackVersion))
		debugf("version detection failed for %s: %v (fallback %s)\n", comp.Name, err, comp.FallbackVersion)
		return Resolution{Component: comp.Name, Version: comp.FallbackVersion, Origin: "fallback"}
	}

	r.Board.Set(comp.Name, StatePending, fmt.Sprintf("version %s detected", version))
	return Resolution{Component: comp.Name, Version: version, Origin: "detected"}
}

func (r *Resolver) detect(comp *Component) (string, error) {
	var listingURL, pattern string

	switch comp.Source.Kind {
	case SourceGNUDir:
		listingURL = comp.Source.URL
		if listingURL == "" {
			listingURL = gnuMirrorURL + "/" + comp.Source.GNUDir + "/"
		}
		// GNU listings name both tarballs and (for gcc) versioned directories.
		base := comp.Source.GNUDir
		pattern = regexp.QuoteMeta(base) + `-(\d+(?:\.\d+)+)`
	case SourcePage:
		listingURL = comp.Source.URL
		pattern = comp.Source.Pattern
	default:
		return "", fmt.Errorf("no detection strategy for %s", comp.Name)
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return "", fmt.Errorf("bad version pattern: %w", err)
	}

	body, err := r.fetchPage(listingURL)
	if err != nil {
		return "", err
	}

	matches := re.FindAllStringSubmatch(body, -1)
	if len(matches) == 0 {
		return "", fmt.Errorf("no version tokens matched at %s", listingURL)
	}

	best := ""
	for _, m := range matches {
		v := m[1]
		if best == "" || compareVersions(v, best) > 0 {
			best = v
		}
	}
	return best, nil
}

func (r *Resolver) fetchPage(url string) (string, error) {
	resp, err := r.Client.Get(url)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch %s: status %s", url, resp.Status)
	}
	// Listings are small; cap the read to keep a misbehaving server in check.
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", url, err)
	}
	return string(body), nil
}

// versionOverride returns the TOOLFORGE_VERSION_<NAME> env override, if set.
// Component names are uppercased with dashes mapped to underscores.
func versionOverride(name string) string {
	key := "TOOLFORGE_VERSION_" + strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
	return os.Getenv(key)
}

// compareVersions compares two version strings split by dots. Numeric
// segments are compared numerically; non-numeric fall back to lexicographic.
// Returns -1 if a<b, 0 if equal, 1 if a>b.
func compareVersions(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	n := len(as)
	if len(bs) > n {
		n = len(bs)
	}
	for i := 0; i < n; i++ {
		av, bv := "0", "0"
		if i < len(as) {
			av = as[i]
		}
		if i < len(bs) {
			bv = bs[i]
		}

		ai, aerr := strconv.Atoi(av)
		bi, berr := strconv.Atoi(bv)
		if aerr == nil && berr == nil {
			if ai < bi {
				return -1
			}
			if ai > bi {
				return 1
			}
			continue
		}
		if av < bv {
			return -1
		}
		if av > bv {
			return 1
		}
	}
	return 0
}
