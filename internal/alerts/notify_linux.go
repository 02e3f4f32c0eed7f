//go:build linux

package alerts

const desktopSupported = true

// desktopCommand builds a notify-send invocation. Critical alerts stay on
// screen until dismissed.
func desktopCommand(a Alert) (string, []string) {
	level := "normal"
	switch a.Severity {
	case SeverityCritical:
		level = "critical"
	case SeverityInfo:
		level = "low"
	}
	body := a.Message
	if a.Source != "" {
		body = "[" + shortSource(a.Source) + "] " + body
	}
	return "notify-send", []string{"--app-name=cc-sentinel", "--urgency=" + level, notificationTitle(a), body}
}
