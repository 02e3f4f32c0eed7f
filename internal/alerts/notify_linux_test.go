//go:build linux

package alerts

import (
	"slices"
	"testing"
)

func TestDesktopCommand_Urgency(t *testing.T) {
	tests := map[string]string{
		SeverityCritical: "--urgency=critical",
		SeverityWarning:  "--urgency=normal",
		SeverityInfo:     "--urgency=low",
	}
	for severity, want := range tests {
		name, args := desktopCommand(Alert{Rule: RuleError, Severity: severity, Message: "m"})
		if name != "notify-send" {
			t.Fatalf("name = %q", name)
		}
		if !slices.Contains(args, want) {
			t.Errorf("severity %s: args %q missing %s", severity, args, want)
		}
	}

	_, args := desktopCommand(Alert{Rule: RuleError, Message: "boom", Source: "file:log"})
	if got := args[len(args)-1]; got != "[file:log] boom" {
		t.Errorf("body = %q", got)
	}
}
