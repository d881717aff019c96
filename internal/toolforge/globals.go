package toolforge

import (
	"sync/atomic"
	"time"

	"github.com/gookit/color"
)

// We use a value of 1 for critical and 0 for non-critical/default.
// While critical (manifest/profile writes), the first Ctrl+C is held back.
var isCriticalAtomic atomic.Int32

// Global variables
var (
	Prefix      string
	WorkDir     string
	DownloadDir string
	SourceDir   string
	LogDir      string
	StateDir    string
	ProfileFile string
	MakeJobs    int
	Debug       bool
	CompatSet   string

	gnuMirrorURL   string
	mirrorPinned   bool // true when the mirror came from config, not the benchmark
	gnuOriginalURL = "https://ftp.gnu.org/gnu"

	ConfigFile = "~/.config/toolforge/toolforge.conf"

	version   = "dev"     // overridden at build time
	buildDate = "unknown" // overridden at build time

	// Download retry policy. Tests shrink the base delay.
	downloadRetries   = 3
	retryBaseDelay    = 2 * time.Second
	terminationGrace  = 5 * time.Second
	displayInterval   = 2 * time.Second
	mirrorCacheMaxAge = 24 * time.Hour
)

// color helpers
var (
	colInfo    = color.Info
	colWarn    = color.Warn
	colError   = color.Error
	colSuccess = color.HEX("#1976D2")
	colArrow   = color.HEX("#FFEB3B")
	colNote    = color.Tag("notice")
)
