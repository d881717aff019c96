package toolforge

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ulikunitz/xz"
)

// RunLog is the shared append-only run log. It accepts interleaved writes
// from any task; each line carries a timestamp.
type RunLog struct {
	mu   sync.Mutex
	f    *os.File
	Path string
}

func openRunLog(logDir string) (*RunLog, error) {
	path := filepath.Join(logDir, fmt.Sprintf("run-%s.log", time.Now().Format("20060102-150405")))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open run log %s: %w", path, err)
	}
	return &RunLog{f: f, Path: path}, nil
}

// Printf appends one timestamped line to the run log.
func (l *RunLog) Printf(format string, args ...any) {
	if l == nil || l.f == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.f, "[%s] ", time.Now().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(l.f, format, args...)
	fmt.Fprintln(l.f)
}

func (l *RunLog) Close() {
	if l == nil || l.f == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.f.Close()
	l.f = nil
}

// taskLog is the isolated log for one task; written by exactly one task,
// so it needs no locking.
type taskLog struct {
	f    *os.File
	path string
}

// openTaskLog creates <logDir>/<step>-<component>.log, truncating any
// previous attempt's log.
func openTaskLog(logDir, step, component string) (*taskLog, error) {
	path := filepath.Join(logDir, fmt.Sprintf("%s-%s.log", step, component))
	// A compressed log from an earlier successful run would shadow this one.
	os.Remove(path + ".xz")
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create task log %s: %w", path, err)
	}
	fmt.Fprintf(f, "==== %s %s started %s ====\n", step, component, time.Now().Format("2006-01-02 15:04:05"))
	return &taskLog{f: f, path: path}, nil
}

func (t *taskLog) Writer() io.Writer {
	if t == nil || t.f == nil {
		return io.Discard
	}
	return t.f
}

// finish writes the final outcome line and closes the log. Successful
// task logs are compressed in place to .log.xz; failed ones stay plain
// for easy inspection.
func (t *taskLog) finish(outcome string) {
	if t == nil || t.f == nil {
		return
	}
	fmt.Fprintf(t.f, "==== %s at %s ====\n", outcome, time.Now().Format("2006-01-02 15:04:05"))
	t.f.Close()
	t.f = nil
	if outcome == "success" {
		if err := compressLog(t.path); err != nil {
			debugf("failed to compress %s: %v\n", t.path, err)
		}
	}
}

// compressLog replaces path with path.xz.
func compressLog(path string) error {
	in, err := os.Open(path)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(path + ".xz")
	if err != nil {
		return err
	}
	xw, err := xz.NewWriter(out)
	if err != nil {
		out.Close()
		return err
	}
	if _, err := io.Copy(xw, in); err != nil {
		xw.Close()
		out.Close()
		return err
	}
	if err := xw.Close(); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(path)
}
