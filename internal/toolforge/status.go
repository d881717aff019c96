package toolforge

import (
	"sort"
	"sync"
	"time"
)

// ComponentState is the coarse phase label shown for a component.
type ComponentState int

const (
	StatePending ComponentState = iota
	StateDetecting
	StateDownloading
	StateExtracting
	StateBuilding
	StateDone
	StateFailed
	StateSkipped
)

func (s ComponentState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateDetecting:
		return "detecting"
	case StateDownloading:
		return "downloading"
	case StateExtracting:
		return "extracting"
	case StateBuilding:
		return "building"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	case StateSkipped:
		return "skipped"
	}
	return "unknown"
}

// terminal reports whether a state is an end state for scheduling purposes.
func (s ComponentState) terminal() bool {
	return s == StateDone || s == StateFailed || s == StateSkipped
}

// StatusEntry is one component's live status line. Exactly one entry per
// component exists at any time; updates overwrite in place.
type StatusEntry struct {
	Component string
	State     ComponentState
	Detail    string
	Updated   time.Time
}

// FailureRecord describes one failed operation for one component.
// Records are append-only and aggregated into the final run summary.
type FailureRecord struct {
	Component string
	Operation string
	Reason    string
	At        time.Time
}

// StatusBoard is the process-wide shared status table. Every concurrently
// running task mutates it; last write for a given component wins.
type StatusBoard struct {
	mu       sync.Mutex
	entries  map[string]StatusEntry
	failures []FailureRecord
}

func NewStatusBoard(components []string) *StatusBoard {
	b := &StatusBoard{entries: make(map[string]StatusEntry, len(components))}
	now := time.Now()
	for _, name := range components {
		b.entries[name] = StatusEntry{Component: name, State: StatePending, Updated: now}
	}
	return b
}

// Set overwrites the component's entry. Updates for different components
// are independent; no cross-component ordering is imposed.
func (b *StatusBoard) Set(component string, state ComponentState, detail string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[component] = StatusEntry{
		Component: component,
		State:     state,
		Detail:    detail,
		Updated:   time.Now(),
	}
}

// Get returns the live entry for a component.
func (b *StatusBoard) Get(component string) (StatusEntry, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[component]
	return e, ok
}

// Fail records a failure and moves the component to the failed state.
func (b *StatusBoard) Fail(component, operation, reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = append(b.failures, FailureRecord{
		Component: component,
		Operation: operation,
		Reason:    reason,
		At:        time.Now(),
	})
	b.entries[component] = StatusEntry{
		Component: component,
		State:     StateFailed,
		Detail:    reason,
		Updated:   time.Now(),
	}
}

// RecordFailure appends a FailureRecord without touching the status entry.
// Used for non-fatal failures such as version detection falling back.
func (b *StatusBoard) RecordFailure(component, operation, reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = append(b.failures, FailureRecord{
		Component: component,
		Operation: operation,
		Reason:    reason,
		At:        time.Now(),
	})
}

// Failures returns a copy of all recorded failures in append order.
func (b *StatusBoard) Failures() []FailureRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]FailureRecord, len(b.failures))
	copy(out, b.failures)
	return out
}

// Snapshot returns all entries sorted by component name.
func (b *StatusBoard) Snapshot() []StatusEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]StatusEntry, 0, len(b.entries))
	for _, e := range b.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Component < out[j].Component })
	return out
}

// Counts returns how many components are finished (done or skipped),
// failed, and the total.
func (b *StatusBoard) Counts() (finished, failed, total int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, e := range b.entries {
		switch e.State {
		case StateDone, StateSkipped:
			finished++
		case StateFailed:
			failed++
		}
	}
	return finished, failed, len(b.entries)
}

// Failed reports whether a component ended in the failed state.
func (b *StatusBoard) Failed(component string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[component]
	return ok && e.State == StateFailed
}
