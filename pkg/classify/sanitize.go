package classify

import (
	"regexp"
	"strings"
	"unicode"
)

// ansiSequence matches CSI and OSC escape sequences emitted by colourising reporters.
var ansiSequence = regexp.MustCompile(`\x1b(?:\[[0-9;?]*[ -/]*[@-~]|\][^\x07\x1b]*(?:\x07|\x1b\\)|[@-Z\\-_])`)

// SanitizeLine strips terminal escape sequences and unsafe control characters
// from a line of tool output, replaces invalid UTF-8 and trims trailing
// whitespace (including the line terminator).
// Tabs are preserved. This prevents log poisoning and terminal corruption.
func SanitizeLine(line string) string {
	line = strings.ToValidUTF8(line, "�")
	if strings.IndexByte(line, 0x1b) >= 0 {
		line = ansiSequence.ReplaceAllString(line, "")
	}

	// Fast path: if no control chars, return as is.
	clean := true
	for _, r := range line {
		if unicode.IsControl(r) && r != '\t' {
			clean = false
			break
		}
	}
	if !clean {
		var b strings.Builder
		b.Grow(len(line))
		for _, r := range line {
			if !unicode.IsControl(r) || r == '\t' {
				b.WriteRune(r)
			}
		}
		line = b.String()
	}
	return strings.TrimRightFunc(line, unicode.IsSpace)
}
