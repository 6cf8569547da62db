// Package term decides whether awconvert writes ANSI colors and holds the
// escape sequences used to flag rows of the analysis table.
package term

import (
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"github.com/AtomWave/AW-converter-2-0/internal/config"
)

// Escape sequences for flagged output. Empty while colors are off, so
// concatenating them is always safe.
var (
	Red    = ""
	Yellow = ""
	NC     = ""
)

// Configure decides whether output is colored and fills in the escape
// sequences accordingly. It reports the decision.
func Configure(mode config.ColorMode) bool {
	on := resolve(mode)
	Red, Yellow, NC = "", "", ""
	if on {
		Red, Yellow, NC = "\033[1;91m", "\033[1;93m", "\033[0m"
	}
	return on
}

// Enabled reports whether ANSI colors are currently active.
func Enabled() bool { return NC != "" }

// resolve determines whether colors should be enabled based on the configured
// mode, TTY detection, and the NO_COLOR env var (https://no-color.org).
func resolve(mode config.ColorMode) bool {
	switch mode {
	case config.ColorAlways:
		return true
	case config.ColorNever:
		return false
	default: // ColorAuto
		return IsTerminal(os.Stdout) &&
			os.Getenv("NO_COLOR") == "" &&
			strings.ToLower(os.Getenv("TERM")) != "dumb"
	}
}

// IsTerminal reports whether f is attached to a TTY, including Cygwin/MSYS
// pseudo terminals.
func IsTerminal(f *os.File) bool {
	if f == nil {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
