package classify_test

import (
	"testing"

	"github.com/aretw0/crucible/pkg/classify"
	"github.com/aretw0/crucible/pkg/domain"
	"github.com/stretchr/testify/assert"
)

func TestClassifier_DefaultMarkers(t *testing.T) {
	c := classify.New(classify.DefaultMarkers())

	tests := []struct {
		name   string
		origin domain.Origin
		line   string
		want   domain.Severity
	}{
		{"stderr always error", domain.OriginStderr, "  1 passing (52ms)", domain.SeverityError},
		{"assertion on stderr", domain.OriginStderr, "AssertionError: expected 89 got 0", domain.SeverityError},
		{"checkmark", domain.OriginStdout, "    ✓ should store the value 89. (81ms)", domain.SeveritySuccess},
		{"passing any case", domain.OriginStdout, "  1 PASSING (2s)", domain.SeveritySuccess},
		{"cross", domain.OriginStdout, "    ✗ should revert", domain.SeverityError},
		{"failing", domain.OriginStdout, "  2 failing", domain.SeverityError},
		{"warning", domain.OriginStdout, "Warning: SPDX license identifier not provided", domain.SeverityWarning},
		{"plain", domain.OriginStdout, "Compiling your contracts...", domain.SeverityInfo},
		{"success wins over failure", domain.OriginStdout, "  3 passing, 1 failing", domain.SeveritySuccess},
		{"system diagnostics use content", domain.OriginSystem, "Using network 'test'.", domain.SeverityInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Classify(tt.origin, tt.line))
		})
	}
}

func TestClassifier_Deterministic(t *testing.T) {
	c := classify.New(classify.DefaultMarkers())
	line := "  5 passing (3s)"
	first := c.Classify(domain.OriginStdout, line)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, c.Classify(domain.OriginStdout, line))
	}
}

func TestClassifier_CustomMarkers(t *testing.T) {
	// forge-style output
	c := classify.New(classify.Markers{
		Success: []string{"[PASS]"},
		Failure: []string{"[FAIL"},
		Warning: []string{"", "deprecated"},
	})

	assert.Equal(t, domain.SeveritySuccess, c.Classify(domain.OriginStdout, "[PASS] testStore() (gas: 31275)"))
	assert.Equal(t, domain.SeverityError, c.Classify(domain.OriginStdout, "[FAIL. Reason: assertion failed] testGet()"))
	assert.Equal(t, domain.SeverityWarning, c.Classify(domain.OriginStdout, "option is DEPRECATED"))
	// Default markers are not implied.
	assert.Equal(t, domain.SeverityInfo, c.Classify(domain.OriginStdout, "1 passing"))
}

func TestClassifier_ZeroValue(t *testing.T) {
	var c classify.Classifier
	assert.Equal(t, domain.SeverityInfo, c.Classify(domain.OriginStdout, "1 passing"))
	assert.Equal(t, domain.SeverityError, c.Classify(domain.OriginStderr, "boom"))
}

func TestSanitizeLine(t *testing.T) {
	assert.Equal(t, "✓ stores value", classify.SanitizeLine("\x1b[32m✓\x1b[0m stores value\r\n"))
	assert.Equal(t, "title", classify.SanitizeLine("\x1b]0;title\x07title"))
	assert.Equal(t, "a\tb", classify.SanitizeLine("a\tb\x00\x07"))
	assert.Equal(t, "bad �", classify.SanitizeLine("bad \xff"))
	assert.Equal(t, "", classify.SanitizeLine("   \n"))
}
