//go:build darwin

package alerts

import "strings"

const desktopSupported = true

var appleScriptQuoter = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

func desktopCommand(a Alert) (string, []string) {
	script := `display notification "` + appleScriptQuoter.Replace(a.Message) +
		`" with title "` + appleScriptQuoter.Replace(notificationTitle(a)) + `"`
	if a.Source != "" {
		script += ` subtitle "` + appleScriptQuoter.Replace(shortSource(a.Source)) + `"`
	}
	if a.Severity == SeverityCritical {
		script += ` sound name "Basso"`
	}
	return "osascript", []string{"-e", script}
}
