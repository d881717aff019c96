package toolforge

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/sys/unix"
)

// Fetcher downloads component archives into the download cache with
// bounded retries. A flock around each destination file keeps concurrent
// tasks (gcc-stage1 and gcc-stage2 share one tarball) from clobbering
// each other's partial downloads.
type Fetcher struct {
	Client  *http.Client
	Retries int
	Delay   time.Duration
}

func NewFetcher() *Fetcher {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSHandshakeTimeout = 30 * time.Second
	return &Fetcher{
		Client: &http.Client{
			Transport: transport,
			Timeout:   300 * time.Second, // large tarballs on slow mirrors
		},
		Retries: downloadRetries,
		Delay:   retryBaseDelay,
	}
}

// applyGnuMirror rewrites a canonical GNU URL to the configured mirror.
func applyGnuMirror(originalURL string) string {
	if gnuMirrorURL != "" && strings.HasPrefix(originalURL, gnuOriginalURL) {
		return strings.Replace(originalURL, gnuOriginalURL, gnuMirrorURL, 1)
	}
	return originalURL
}

// Fetch downloads url into destFile unless it already exists. Each failed
// attempt removes the partial file; the delay before the next attempt
// doubles each time.
func (f *Fetcher) Fetch(ctx context.Context, url, destFile string, progress io.Writer) error {
	if err := os.MkdirAll(filepath.Dir(destFile), 0o755); err != nil {
		return fmt.Errorf("failed to create download directory: %w", err)
	}

	lockPath := destFile + ".lock"
	lFile, err := os.Create(lockPath)
	if err != nil {
		return fmt.Errorf("failed to create lock file: %w", err)
	}
	defer lFile.Close()

	if err := unix.Flock(int(lFile.Fd()), unix.LOCK_EX); err != nil {
		return fmt.Errorf("failed to acquire download lock: %w", err)
	}
	defer unix.Flock(int(lFile.Fd()), unix.LOCK_UN)

	// Another task may have finished the file while we waited on the lock.
	if fileExists(destFile) {
		debugf("file %s appeared after acquiring lock, skipping download\n", destFile)
		_ = os.Remove(lockPath)
		return nil
	}
	defer func() {
		if fileExists(destFile) {
			_ = os.Remove(lockPath)
		}
	}()

	finalURL := applyGnuMirror(url)
	delay := f.Delay
	var lastErr error
	for attempt := 1; attempt <= f.Retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = f.download(ctx, finalURL, destFile, progress)
		if lastErr == nil {
			return nil
		}
		// Never leave a truncated archive behind for a later run to trust.
		_ = os.Remove(destFile)
		debugf("download attempt %d/%d for %s failed: %v\n", attempt, f.Retries, finalURL, lastErr)
		if attempt < f.Retries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
	}
	return fmt.Errorf("download failed after %d attempts: %w", f.Retries, lastErr)
}

// download performs a single attempt, preferring curl when available.
func (f *Fetcher) download(ctx context.Context, url, destFile string, progress io.Writer) error {
	if _, err := exec.LookPath("curl"); err == nil {
		cmd := exec.CommandContext(ctx, "curl", "-L", "--fail", "-sS", "-o", destFile, url)
		cmd.Stdout = io.Discard
		cmd.Stderr = io.Discard
		if err := cmd.Run(); err == nil {
			debugf("download successful with curl: %s\n", url)
			return nil
		}
		debugf("curl failed for %s, falling back to native HTTP client\n", url)
	}
	return f.downloadNative(ctx, url, destFile, progress)
}

func (f *Fetcher) downloadNative(ctx context.Context, url, destFile string, progress io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return fmt.Errorf("native http get failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed with status: %s", resp.Status)
	}

	out, err := os.Create(destFile)
	if err != nil {
		return fmt.Errorf("failed to create destination file %s: %w", destFile, err)
	}
	defer out.Close()

	var body io.Reader = resp.Body
	if progress != nil {
		bar := progressbar.NewOptions64(resp.ContentLength,
			progressbar.OptionSetDescription(filepath.Base(destFile)),
			progressbar.OptionSetWriter(progress),
			progressbar.OptionShowBytes(true),
			progressbar.OptionClearOnFinish(),
			progressbar.OptionThrottle(200*time.Millisecond),
		)
		body = io.TeeReader(resp.Body, bar)
	}
	if _, err := io.Copy(out, body); err != nil {
		return fmt.Errorf("failed to write destination file: %w", err)
	}
	debugf("download successful with native HTTP client: %s\n", url)
	return nil
}
