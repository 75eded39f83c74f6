package tui

import (
	"fmt"
	"io"
	"strings"

	"github.com/muesli/termenv"
)

// PrintBanner writes the crucible ASCII art banner followed by the version.
func PrintBanner(w io.Writer, version string) {
	o := termenv.NewOutput(w)
	// Ember gradient, hottest at the bottom
	lines := []struct {
		text  string
		color string
	}{
		{"   ___               _ _     _", "#fde68a"},
		{"  / __|_ _ _  _ __ _(_) |__ | |___", "#fcd34d"},
		{" | (__| '_| || / _|| | | '_ \\| / -_)", "#fbbf24"},
		{"  \\___|_|  \\_,_\\__||_|_|_.__/|_\\___|", "#f59e0b"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, o.String(l.text).Foreground(o.Color(l.color)))
	}
	fmt.Fprintln(w, o.String("  v"+strings.TrimSpace(version)).Faint())
	fmt.Fprintln(w)
}
