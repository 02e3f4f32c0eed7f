package alerts

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestFormatLine(t *testing.T) {
	at := time.Date(2024, 1, 1, 9, 30, 5, 0, time.Local)
	line := FormatLine(Alert{
		Rule:     RuleSessionLimitWarning,
		Severity: SeverityWarning,
		Message:  "80% of session limit used",
		Source:   "main",
		FiredAt:  at,
	})

	for _, want := range []string{"09:30:05", "WARNING", "[main]", "SessionLimitWarning: 80% of session limit used"} {
		if !strings.Contains(line, want) {
			t.Errorf("FormatLine() = %q, missing %q", line, want)
		}
	}
}

func TestFormatLine_GlobalAlert(t *testing.T) {
	line := FormatLine(Alert{Rule: RuleDailyTokens, Severity: SeverityCritical, Message: "over budget"})
	if strings.Contains(line, "] ") {
		t.Errorf("global alert should have no source tag, got %q", line)
	}
	if !strings.Contains(line, "CRITICAL") {
		t.Errorf("expected severity, got %q", line)
	}
}

func TestConsoleNotifier(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsoleNotifier(&buf)
	c.Notify(Alert{Rule: RuleError, Severity: SeverityInfo, Message: "one"})
	c.Notify(Alert{Rule: RuleError, Severity: SeverityInfo, Message: "two"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), buf.String())
	}
}
