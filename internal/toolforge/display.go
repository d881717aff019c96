package toolforge

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/term"
)

// Display renders run progress by polling the status board on a fixed
// interval. On a terminal it rewrites a single status line in place; when
// stdout is redirected it degrades to plain periodic lines.
type Display struct {
	Board    *StatusBoard
	Interval time.Duration
	isTTY    bool
	started  time.Time
}

func NewDisplay(board *StatusBoard) *Display {
	return &Display{
		Board:    board,
		Interval: displayInterval,
		isTTY:    term.IsTerminal(int(os.Stdout.Fd())),
		started:  time.Now(),
	}
}

// Loop renders until ctx is cancelled. The cursor is hidden while the
// live line is active and restored unconditionally on exit.
func (d *Display) Loop(ctx context.Context) {
	if d.isTTY {
		fmt.Print("\033[?25l")
		defer fmt.Print("\033[?25h")
	}

	ticker := time.NewTicker(d.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.render()
			if d.isTTY {
				fmt.Println()
			}
			return
		case <-ticker.C:
			d.render()
		}
	}
}

func (d *Display) render() {
	line := d.statusLine()
	if d.isTTY {
		if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && len(line) > w && w > 3 {
			line = line[:w-3] + "..."
		}
		fmt.Printf("\r\033[K%s", line)
	} else {
		fmt.Println(line)
	}
}

// statusLine summarizes the board: percent finished plus the components
// currently in flight with their step. Failed components never count
// toward progress, so a run with failures cannot show 100%.
func (d *Display) statusLine() string {
	finished, failed, total := d.Board.Counts()
	pct := 0
	if total > 0 {
		pct = finished * 100 / total
	}

	var active []string
	for _, e := range d.Board.Snapshot() {
		if !e.State.terminal() && e.State != StatePending {
			active = append(active, fmt.Sprintf("%s:%s", e.Component, e.State))
		}
	}

	elapsed := time.Since(d.started).Truncate(time.Second)
	line := fmt.Sprintf("[%3d%%] %d/%d done", pct, finished, total)
	if failed > 0 {
		line += fmt.Sprintf(", %d failed", failed)
	}
	line += fmt.Sprintf(" (%s)", elapsed)
	if len(active) > 0 {
		line += " | " + strings.Join(active, " ")
	}
	return line
}

// printSummary writes the final outcome table after the run settles.
func printSummary(board *StatusBoard, resolver *Resolver) {
	fmt.Println()
	for _, res := range resolver.Resolutions() {
		entry, _ := board.Get(res.Component)
		switch entry.State {
		case StateDone:
			colArrow.Print("-> ")
			colSuccess.Printf("%-12s %-10s %s\n", res.Component, res.Version, entry.Detail)
		case StateSkipped:
			cPrintf(colInfo, "   %-12s %-10s already installed\n", res.Component, res.Version)
		}
	}

	failures := board.Failures()
	if len(failures) == 0 {
		fmt.Println()
		colArrow.Print("-> ")
		colSuccess.Println("All components built successfully")
		return
	}

	fmt.Println()
	cPrintln(colError, "Failed or Blocked Components:")
	for _, f := range failures {
		cPrintf(colError, "  %-12s %-18s %s\n", f.Component, f.Operation, f.Reason)
	}
}
