// Package classify maps raw tool output lines to severities.
//
// Classification is origin-aware and driven by configurable substring markers,
// so the same rules serve any verification tool whose output format differs.
package classify

import (
	"strings"

	"github.com/aretw0/crucible/pkg/domain"
)

// Markers are the substrings that identify a line's outcome.
// Matching is case-insensitive.
type Markers struct {
	Success []string `yaml:"success" json:"success" mapstructure:"success"`
	Failure []string `yaml:"failure" json:"failure" mapstructure:"failure"`
	Warning []string `yaml:"warning" json:"warning" mapstructure:"warning"`
}

// DefaultMarkers matches mocha-style reporters such as the one used by truffle test.
func DefaultMarkers() Markers {
	return Markers{
		Success: []string{"✓", "passing"},
		Failure: []string{"✗", "failing"},
		Warning: []string{"warning"},
	}
}

// IsZero reports whether no markers are configured at all.
func (m Markers) IsZero() bool {
	return len(m.Success) == 0 && len(m.Failure) == 0 && len(m.Warning) == 0
}

// Classifier is a pure, deterministic line classifier. The zero value classifies
// every stdout line as info.
type Classifier struct {
	success []string
	failure []string
	warning []string
}

// New builds a Classifier from markers. Empty markers are ignored.
func New(m Markers) *Classifier {
	return &Classifier{
		success: normalize(m.Success),
		failure: normalize(m.Failure),
		warning: normalize(m.Warning),
	}
}

// Classify returns the severity of a line given the stream it came from.
//
// Rules, first match wins: stderr is always an error; then success markers,
// failure markers, warning markers; anything else is info.
func (c *Classifier) Classify(origin domain.Origin, line string) domain.Severity {
	if origin == domain.OriginStderr {
		return domain.SeverityError
	}
	lower := strings.ToLower(line)
	switch {
	case containsAny(lower, c.success):
		return domain.SeveritySuccess
	case containsAny(lower, c.failure):
		return domain.SeverityError
	case containsAny(lower, c.warning):
		return domain.SeverityWarning
	default:
		return domain.SeverityInfo
	}
}

func normalize(markers []string) []string {
	out := make([]string, 0, len(markers))
	for _, m := range markers {
		if m == "" {
			continue
		}
		out = append(out, strings.ToLower(m))
	}
	return out
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
