package toolforge

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// Outcome is the terminal result of one task attempt.
type Outcome int

const (
	OutcomePending Outcome = iota
	OutcomeSuccess
	OutcomeFailed
	OutcomeSkipped
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailed:
		return "failed"
	case OutcomeSkipped:
		return "skipped"
	}
	return "pending"
}

// TaskResult is the observed exit of one task.
type TaskResult struct {
	Component string
	Step      string
	Outcome   Outcome
	Err       error
	Duration  time.Duration
}

// Handle tracks one running task. Poll is non-blocking; Join blocks until
// the task reaches a terminal outcome. The handle is released (removed
// from the runner's live set) once its result has been observed.
type Handle struct {
	component string
	step      string
	started   time.Time
	done      chan struct{}
	result    TaskResult
}

// Poll reports whether the task has reached a terminal outcome.
func (h *Handle) Poll() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Join blocks until the task completes and returns its result.
func (h *Handle) Join() TaskResult {
	<-h.done
	return h.result
}

// task is one schedulable unit of work: an idempotency check plus the
// operation itself. The run func receives the per-task log writer.
type task struct {
	component string
	step      string
	state     ComponentState
	skip      func() bool
	run       func(ctx context.Context, log io.Writer) error
}

// Runner launches tasks as independent concurrent goroutines and records
// every transition on the StatusBoard and the shared run log.
type Runner struct {
	ctx    context.Context
	board  *StatusBoard
	runLog *RunLog
	logDir string

	mu   sync.Mutex
	live map[*Handle]struct{}
}

func NewRunner(ctx context.Context, board *StatusBoard, runLog *RunLog, logDir string) *Runner {
	return &Runner{
		ctx:    ctx,
		board:  board,
		runLog: runLog,
		logDir: logDir,
		live:   make(map[*Handle]struct{}),
	}
}

// Start launches the task and returns its handle.
func (r *Runner) Start(t task) *Handle {
	h := &Handle{
		component: t.component,
		step:      t.step,
		started:   time.Now(),
		done:      make(chan struct{}),
	}
	r.mu.Lock()
	r.live[h] = struct{}{}
	r.mu.Unlock()

	go r.execute(t, h)
	return h
}

func (r *Runner) execute(t task, h *Handle) {
	defer func() {
		r.mu.Lock()
		delete(r.live, h)
		r.mu.Unlock()
		close(h.done)
	}()

	res := TaskResult{Component: t.component, Step: t.step}

	if t.skip != nil && t.skip() {
		res.Outcome = OutcomeSkipped
		h.result = res
		r.board.Set(t.component, StateSkipped, t.step+" already done")
		r.runLog.Printf("%s %s: skipped (already done)", t.step, t.component)
		return
	}

	r.board.Set(t.component, t.state, t.step)

	tl, err := openTaskLog(r.logDir, t.step, t.component)
	if err != nil {
		res.Outcome = OutcomeFailed
		res.Err = err
		h.result = res
		r.board.Fail(t.component, t.step, err.Error())
		r.runLog.Printf("%s %s: failed: %v", t.step, t.component, err)
		return
	}

	err = t.run(r.ctx, tl.Writer())
	res.Duration = time.Since(h.started)

	if err != nil {
		res.Outcome = OutcomeFailed
		res.Err = fmt.Errorf("%s %s: %w", t.step, t.component, err)
		tl.finish("failed: " + err.Error())
		r.board.Fail(t.component, t.step, err.Error())
		r.runLog.Printf("%s %s: failed after %s: %v", t.step, t.component, res.Duration.Truncate(time.Millisecond), err)
	} else {
		res.Outcome = OutcomeSuccess
		tl.finish("success")
		r.runLog.Printf("%s %s: success in %s", t.step, t.component, res.Duration.Truncate(time.Millisecond))
	}
	h.result = res
}

// LiveCount returns how many task handles have not yet been released.
func (r *Runner) LiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.live)
}
