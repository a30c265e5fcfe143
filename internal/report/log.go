package report

import (
	"fmt"
	"io"
	"strings"
	"time"
)

const (
	tick          = "✔"
	cross         = "✖"
	headingPrefix = "❯"
	subtextPad    = "  "
)

// TimerLine reports one finished function
func TimerLine(w io.Writer, name string, d time.Duration) {
	_, _ = fmt.Fprintf(w, " %s  %s completed in %dms\n", tick, name, d.Milliseconds())
}

// FailureLine reports one failed function
func FailureLine(w io.Writer, name string, d time.Duration) {
	_, _ = fmt.Fprintf(w, " %s  %s failed after %dms\n", cross, name, d.Milliseconds())
}

// BuildStart announces a build of n functions
func BuildStart(w io.Writer, version string, dir string, n int) {
	noun := "functions"
	if n == 1 {
		noun = "function"
	}
	_, _ = fmt.Fprintf(w, "%s Starting funcpack %s\n%sFound %d %s in %s\n\n", headingPrefix, version, subtextPad, n, noun, dir)
}

// ErrorBanner prints a boxed error title followed by each message
func ErrorBanner(w io.Writer, messages ...string) {
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprint(w, box("funcpack Build Error!"))
	for _, msg := range messages {
		_, _ = fmt.Fprintf(w, "\n%s\n", msg)
	}
	_, _ = fmt.Fprintln(w)
}

// SuccessBanner prints a boxed completion title with the number of built
// functions
func SuccessBanner(w io.Writer, built int) {
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprint(w, box("funcpack Build Complete!"))
	noun := "functions"
	if built == 1 {
		noun = "function"
	}
	_, _ = fmt.Fprintf(w, "%s%d %s built\n\n", subtextPad, built, noun)
}

func box(title string) string {
	width := len([]rune(title)) + 6
	line := strings.Repeat("─", width)
	return fmt.Sprintf("┌%s┐\n│   %s   │\n└%s┘\n", line, title, line)
}
