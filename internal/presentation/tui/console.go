package tui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/crucible/pkg/domain"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// Severity colours of the console.
const (
	ColorSuccess = "#4CAF50"
	ColorError   = "#f44336"
	ColorWarning = "#ff9800"
	ColorInfo    = "#4FC3F7"
)

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// Console prints harness events the way the original log panel showed them.
type Console struct {
	mu     sync.Mutex
	w      io.Writer
	out    *termenv.Output
	color  bool
	render func(string) (string, error)
}

// NewConsole writes to w. With color false, output is plain text and
// markdown is printed as is.
func NewConsole(w io.Writer, color bool) *Console {
	profile := termenv.Ascii
	if color {
		profile = termenv.EnvColorProfile()
	}
	c := &Console{
		w:     w,
		out:   termenv.NewOutput(w, termenv.WithProfile(profile)),
		color: color,
	}
	if color {
		c.render = NewRenderer()
	}
	return c
}

// Print writes one event. State events are shown faint. Log events carry
// their time and severity label, and are coloured by severity when colour is
// enabled. Stderr lines carry a marker so they stay distinguishable.
func (c *Console) Print(ev domain.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case ev.Log != nil:
		text := ev.Log.Text
		if ev.Log.Origin == domain.OriginStderr {
			text = "! " + text
		}
		line := fmt.Sprintf("%s %-7s %s", ev.Log.Timestamp.Format(time.TimeOnly), severityLabel(ev.Log.Severity), text)
		fmt.Fprintln(c.w, c.out.String(line).Foreground(c.out.Color(severityColor(ev.Log.Severity))))
	case ev.State != nil:
		line := fmt.Sprintf("[run %d] %s -> %s", ev.State.RunID, ev.State.From, ev.State.To)
		if ev.State.ExitCode != nil {
			line += fmt.Sprintf(" (exit %d)", *ev.State.ExitCode)
		}
		fmt.Fprintln(c.w, c.out.String(line).Faint())
	}
}

// Summary writes a markdown table describing a finished run.
func (c *Console) Summary(run domain.TestRun) {
	c.mu.Lock()
	defer c.mu.Unlock()

	md := SummaryMarkdown(run)
	if c.render != nil {
		if out, err := c.render(md); err == nil {
			md = out
		}
	}
	fmt.Fprint(c.w, md)
}

// SummaryMarkdown renders run as a markdown table.
func SummaryMarkdown(run domain.TestRun) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Run %d\n\n", run.ID)
	b.WriteString("| Outcome | Exit code | Duration |\n")
	b.WriteString("|---|---|---|\n")

	exit := "-"
	if run.ExitCode != nil {
		exit = fmt.Sprintf("%d", *run.ExitCode)
	}
	fmt.Fprintf(&b, "| %s | %s | %s |\n", run.State, exit, run.Duration().Round(time.Millisecond))
	if run.Err != "" {
		fmt.Fprintf(&b, "\n> %s\n", strings.ReplaceAll(run.Err, "\n", " "))
	}
	return b.String()
}

func severityLabel(s domain.Severity) string {
	switch s {
	case domain.SeveritySuccess:
		return "[OK]"
	case domain.SeverityError:
		return "[ERROR]"
	case domain.SeverityWarning:
		return "[WARN]"
	default:
		return "[INFO]"
	}
}

func severityColor(s domain.Severity) string {
	switch s {
	case domain.SeveritySuccess:
		return ColorSuccess
	case domain.SeverityError:
		return ColorError
	case domain.SeverityWarning:
		return ColorWarning
	default:
		return ColorInfo
	}
}
