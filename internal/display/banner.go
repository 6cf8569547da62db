package display

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"github.com/AtomWave/AW-converter-2-0/internal/term"
)

const bannerArt = `    ___ _       __   ______                           __
   /   | |     / /  / ____/___  ____ _   _____  _____/ /____  _____
  / /| | | /| / /  / /   / __ \/ __ \ | / / _ \/ ___/ __/ _ \/ ___/
 / ___ | |/ |/ /  / /___/ /_/ / / / / |/ /  __/ /  / /_/  __/ /
/_/  |_|__/|__/   \____/\____/_/ /_/|___/\___/_/   \__/\___/_/`

var bannerStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("13"))

// PrintBanner writes the ASCII art banner and version line; styled in
// magenta when colors are enabled.
func PrintBanner(w io.Writer, version string) {
	art := bannerArt
	if term.Enabled() {
		art = bannerStyle.Render(art)
	}
	fmt.Fprintln(w, art)
	fmt.Fprintf(w, "  static asset pipeline %s\n\n", version)
}
