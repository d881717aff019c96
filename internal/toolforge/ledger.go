package toolforge

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Ledger is the durable record of idempotent steps. Skip decisions rest on
// what actually exists on disk (archives, source trees, installed files),
// so a partially cancelled run resumes correctly: whatever survived is
// exactly what the predicates see. The journal file is an append-only
// audit trail of completed steps across runs.
type Ledger struct {
	Prefix      string
	DownloadDir string
	SourceDir   string

	mu      sync.Mutex
	journal *os.File
}

func NewLedger(prefix, downloadDir, sourceDir, stateDir string) *Ledger {
	l := &Ledger{Prefix: prefix, DownloadDir: downloadDir, SourceDir: sourceDir}
	if stateDir != "" {
		f, err := os.OpenFile(filepath.Join(stateDir, "ledger"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err == nil {
			l.journal = f
		} else {
			debugf("ledger journal unavailable: %v\n", err)
		}
	}
	return l
}

// DownloadPath is where the component's archive lives in the cache.
func (l *Ledger) DownloadPath(comp *Component, version string) string {
	return filepath.Join(l.DownloadDir, comp.ArchiveName(version))
}

// SourcePath is where the component's extracted tree lives.
func (l *Ledger) SourcePath(comp *Component, version string) string {
	return filepath.Join(l.SourceDir, comp.SrcDirName(version))
}

// Downloaded is true iff the component's archive is already present.
func (l *Ledger) Downloaded(comp *Component, version string) bool {
	return fileExists(l.DownloadPath(comp, version))
}

// Extracted is true iff the component's source tree is already present.
func (l *Ledger) Extracted(comp *Component, version string) bool {
	return dirExists(l.SourcePath(comp, version))
}

// Installed is true iff the component's install artifact exists under the prefix.
func (l *Ledger) Installed(comp *Component) bool {
	return comp.Installed(l.Prefix)
}

// MarkDone journals a completed step.
func (l *Ledger) MarkDone(step string, comp *Component, version string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.journal == nil {
		return
	}
	fmt.Fprintf(l.journal, "%s %s %s %s\n", time.Now().Format(time.RFC3339), step, comp.Name, version)
}

func (l *Ledger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.journal != nil {
		l.journal.Close()
		l.journal = nil
	}
}
