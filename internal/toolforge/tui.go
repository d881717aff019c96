package toolforge

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/ulikunitz/xz"
)

type logInfo struct {
	path    string
	content string
}

var (
	tuiApp         *tview.Application
	tuiLogs        []logInfo
	tuiActiveIdx   int
	tuiPrevIdx     int
	tuiHeaderBox   *tview.TextView
	tuiLogView     *tview.TextView
	tuiFooterBox   *tview.TextView
	tuiUpdateChan  chan []logInfo
	tuiPrevContent map[string]string
)

// runLogViewer opens the interactive log browser over the log directory.
// It follows live logs while a build runs in another terminal.
func runLogViewer() int {
	tuiUpdateChan = make(chan []logInfo, 10)
	tuiPrevContent = make(map[string]string)
	tuiPrevIdx = -1

	tuiApp = tview.NewApplication()

	tuiHeaderBox = tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(false).
		SetTextAlign(tview.AlignLeft)
	tuiHeaderBox.SetBorder(true)
	tuiHeaderBox.SetTitle("toolforge Log Viewer")

	tuiLogView = tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(false).
		SetScrollable(true).
		SetChangedFunc(func() {
			tuiApp.Draw()
		})
	tuiLogView.SetBorder(true)

	tuiFooterBox = tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(true).
		SetTextAlign(tview.AlignLeft)
	tuiFooterBox.SetBorder(true)

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(tuiHeaderBox, 3, 0, false).
		AddItem(tuiLogView, 0, 1, true).
		AddItem(tuiFooterBox, 3, 0, false)

	flex.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyCtrlQ, tcell.KeyEsc:
			tuiApp.Stop()
			return nil
		case tcell.KeyLeft:
			switchLog(-1)
			return nil
		case tcell.KeyRight:
			switchLog(1)
			return nil
		case tcell.KeyHome:
			tuiLogView.ScrollToBeginning()
			return nil
		case tcell.KeyEnd:
			tuiLogView.ScrollToEnd()
			return nil
		case tcell.KeyUp:
			row, _ := tuiLogView.GetScrollOffset()
			if row > 0 {
				tuiLogView.ScrollTo(row-1, 0)
			}
			return nil
		case tcell.KeyDown:
			row, _ := tuiLogView.GetScrollOffset()
			tuiLogView.ScrollTo(row+1, 0)
			return nil
		case tcell.KeyPgUp:
			row, _ := tuiLogView.GetScrollOffset()
			if row > 10 {
				tuiLogView.ScrollTo(row-10, 0)
			} else {
				tuiLogView.ScrollToBeginning()
			}
			return nil
		case tcell.KeyPgDn:
			row, _ := tuiLogView.GetScrollOffset()
			tuiLogView.ScrollTo(row+10, 0)
			return nil
		case tcell.KeyRune:
			switch event.Rune() {
			case 'q':
				tuiApp.Stop()
				return nil
			case 'h':
				switchLog(-1)
				return nil
			case 'l':
				switchLog(1)
				return nil
			}
		}
		return event
	})

	go func() {
		ticker := time.NewTicker(400 * time.Millisecond)
		defer ticker.Stop()
		for range ticker.C {
			logs := readAllLogs()
			select {
			case tuiUpdateChan <- logs:
			default:
			}
		}
	}()

	go func() {
		for logs := range tuiUpdateChan {
			var currentLogPath string
			if tuiActiveIdx < len(tuiLogs) {
				currentLogPath = tuiLogs[tuiActiveIdx].path
			}

			tuiLogs = logs

			if currentLogPath != "" {
				found := false
				for i, log := range tuiLogs {
					if log.path == currentLogPath {
						tuiActiveIdx = i
						found = true
						break
					}
				}
				if !found && tuiActiveIdx >= len(tuiLogs) && len(tuiLogs) > 0 {
					tuiActiveIdx = len(tuiLogs) - 1
				}
			}

			tuiApp.QueueUpdateDraw(func() {
				updateTUI()
			})
		}
	}()

	tuiApp.SetRoot(flex, true).SetFocus(tuiLogView)

	tuiLogs = readAllLogs()
	if len(tuiLogs) > 0 {
		tuiActiveIdx = 0
	}
	updateTUI()

	if err := tuiApp.Run(); err != nil {
		fmt.Fprintln(os.Stderr, "tui:", err)
		return 1
	}
	return 0
}

func switchLog(delta int) {
	if len(tuiLogs) == 0 {
		return
	}
	tuiActiveIdx += delta
	if tuiActiveIdx < 0 {
		tuiActiveIdx = len(tuiLogs) - 1
	}
	if tuiActiveIdx >= len(tuiLogs) {
		tuiActiveIdx = 0
	}
	updateTUI()
}

func updateTUI() {
	if tuiApp == nil || tuiHeaderBox == nil || tuiLogView == nil || tuiFooterBox == nil {
		return
	}

	if len(tuiLogs) == 0 {
		tuiHeaderBox.SetText("[gray]No logs found[white]")
	} else if tuiActiveIdx < len(tuiLogs) {
		log := tuiLogs[tuiActiveIdx]
		tuiHeaderBox.SetText(fmt.Sprintf("[gray]Log %d/%d: %s[white]", tuiActiveIdx+1, len(tuiLogs), log.path))
	} else {
		tuiHeaderBox.SetText("[gray]No active log[white]")
	}

	if len(tuiLogs) == 0 {
		tuiLogView.SetText("No logs yet. Run toolforge to start a build.")
	} else if tuiActiveIdx < len(tuiLogs) {
		log := tuiLogs[tuiActiveIdx]
		prevContent := tuiPrevContent[log.path]

		switchedTabs := tuiPrevIdx != tuiActiveIdx
		if switchedTabs {
			tuiPrevIdx = tuiActiveIdx
		}

		if log.content != prevContent || switchedTabs {
			tuiLogView.Clear()
			ansiWriter := tview.ANSIWriter(tuiLogView)
			ansiWriter.Write([]byte(log.content))
			tuiLogView.ScrollToEnd()
			tuiPrevContent[log.path] = log.content
		}
	} else {
		tuiLogView.SetText("")
	}

	tuiFooterBox.SetText("[gray]q/Esc quit | ← → (h/l) switch logs | ↑ ↓ scroll | Home/End jump[white]")
}

// readAllLogs collects every log in LogDir, newest first. Compressed
// logs from completed tasks are transparently decompressed.
func readAllLogs() []logInfo {
	var allPaths []string
	for _, pattern := range []string{"*.log", "*.log.xz"} {
		paths, _ := filepath.Glob(filepath.Join(LogDir, pattern))
		allPaths = append(allPaths, paths...)
	}

	if len(allPaths) == 0 {
		return nil
	}

	sort.Slice(allPaths, func(i, j int) bool {
		ai, err1 := os.Stat(allPaths[i])
		aj, err2 := os.Stat(allPaths[j])
		if err1 != nil || err2 != nil {
			return allPaths[i] > allPaths[j]
		}
		return ai.ModTime().After(aj.ModTime())
	})

	logs := make([]logInfo, 0, len(allPaths))
	for _, path := range allPaths {
		content, err := readLogFile(path)
		if err != nil {
			content = fmt.Sprintf("failed to read log: %v", err)
		}
		logs = append(logs, logInfo{path: path, content: content})
	}
	return logs
}

func readLogFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".xz") {
		xr, err := xz.NewReader(f)
		if err != nil {
			return "", err
		}
		r = xr
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
