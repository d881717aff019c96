package toolforge

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// gnuMirrors is the candidate list for the speed benchmark, fastest of
// which becomes gnuMirrorURL for the whole run.
var gnuMirrors = []string{
	"https://ftp.gnu.org/gnu",
	"https://mirrors.kernel.org/gnu",
	"https://mirror.team-cymru.org/gnu",
	"https://ftpmirror.gnu.org",
	"https://gnu.mirror.constant.com",
}

// mirrorCache is the persisted benchmark result.
type mirrorCache struct {
	BestMirror string    `json:"best_mirror"`
	Tested     time.Time `json:"tested"`
	Seconds    float64   `json:"seconds"`
}

func mirrorCachePath() string {
	return filepath.Join(StateDir, "mirrors.json")
}

// cachedFastestMirror returns the benchmark winner from the cache if it
// is fresh, or "" when a new benchmark is needed.
func cachedFastestMirror() string {
	data, err := os.ReadFile(mirrorCachePath())
	if err != nil {
		return ""
	}
	var c mirrorCache
	if err := json.Unmarshal(data, &c); err != nil {
		return ""
	}
	if time.Since(c.Tested) > mirrorCacheMaxAge {
		return ""
	}
	for _, m := range gnuMirrors {
		if m == c.BestMirror {
			return c.BestMirror
		}
	}
	return ""
}

// timeMirror measures how long a mirror takes to serve the first MiB of a
// small well-known tarball. Failures count as unusable.
func timeMirror(client *http.Client, mirror string) (time.Duration, error) {
	testURL := mirror + "/hello/hello-2.12.tar.gz"
	start := time.Now()
	resp, err := client.Get(testURL)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("status %s", resp.Status)
	}
	if _, err := io.CopyN(io.Discard, resp.Body, 1<<20); err != nil && err != io.EOF {
		return 0, err
	}
	return time.Since(start), nil
}

// benchmarkMirrors times every candidate, persists the winner, and
// returns it. When every mirror fails the first candidate is returned so
// downloads can still try their luck.
func benchmarkMirrors(out io.Writer) string {
	client := &http.Client{Timeout: 10 * time.Second}

	best := gnuMirrors[0]
	bestTime := time.Duration(-1)
	cPrintf(colInfo, "Testing GNU mirror speeds...\n")
	for _, m := range gnuMirrors {
		d, err := timeMirror(client, m)
		if err != nil {
			cPrintf(colWarn, "  %-45s unreachable (%v)\n", m, err)
			continue
		}
		fmt.Fprintf(out, "  %-45s %.2fs\n", m, d.Seconds())
		if bestTime < 0 || d < bestTime {
			bestTime = d
			best = m
		}
	}

	if bestTime < 0 {
		cPrintf(colWarn, "All mirrors failed, using default: %s\n", best)
		return best
	}
	colArrow.Print("-> ")
	colSuccess.Printf("Fastest mirror: %s (%.2fs)\n", best, bestTime.Seconds())

	c := mirrorCache{BestMirror: best, Tested: time.Now(), Seconds: bestTime.Seconds()}
	if data, err := json.MarshalIndent(c, "", "  "); err == nil {
		if err := os.WriteFile(mirrorCachePath(), data, 0o644); err != nil {
			debugf("failed to write mirror cache: %v\n", err)
		}
	}
	return best
}

// selectMirror resolves the GNU mirror for this run: cache first, then a
// fresh benchmark.
func selectMirror(out io.Writer) string {
	if m := cachedFastestMirror(); m != "" {
		debugf("using cached fastest mirror: %s\n", m)
		return m
	}
	return benchmarkMirrors(out)
}
