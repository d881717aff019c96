package toolforge

import (
	"fmt"
	"os"
)

// colorPrinter is the subset of gookit/color shared by *color.Theme,
// *color.Style and color.Tag, so callers can take any of them.
type colorPrinter interface {
	Printf(format string, a ...any)
	Println(a ...any)
}

// cPrintf formats through the given style; a nil style means plain output.
func cPrintf(p colorPrinter, format string, a ...any) {
	if p == nil {
		fmt.Printf(format, a...)
		return
	}
	p.Printf(format, a...)
}

// cPrintln prints a styled line; a nil style means plain output.
func cPrintln(p colorPrinter, a ...any) {
	if p == nil {
		fmt.Println(a...)
		return
	}
	p.Println(a...)
}

// debugf emits diagnostics on stderr when TOOLFORGE_DEBUG is set. Stderr
// keeps debug chatter off the in-place status line on stdout.
func debugf(format string, args ...any) {
	if Debug {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}
