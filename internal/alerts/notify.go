package alerts

import (
	"fmt"
	"log"
	"os/exec"
	"strings"
)

const maxSourceRunes = 24

// Desktop raises system notifications through the platform's notification
// command. The command runs in its own goroutine and failures are only
// logged.
type Desktop struct {
	enabled bool
	run     func(name string, args ...string) error
}

// NewPlatformNotifier returns a Desktop sink, or Nop where the platform has
// no notification command or enabled is false.
func NewPlatformNotifier(enabled bool) Sink {
	if !enabled || !desktopSupported {
		return Nop{}
	}
	return &Desktop{enabled: true, run: runCommand}
}

func (d *Desktop) Notify(a Alert) {
	if !d.enabled {
		return
	}
	name, args := desktopCommand(a)
	go func() {
		if err := d.run(name, args...); err != nil {
			log.Printf("WARNING: %s notification failed: %v", name, err)
		}
	}()
}

func runCommand(name string, args ...string) error {
	return exec.Command(name, args...).Run()
}

func notificationTitle(a Alert) string {
	return fmt.Sprintf("cc-sentinel: %s", a.Rule)
}

// shortSource clips long source names to maxSourceRunes.
func shortSource(id string) string {
	r := []rune(id)
	if len(r) <= maxSourceRunes {
		return id
	}
	return strings.TrimRight(string(r[:maxSourceRunes-1]), " ") + "…"
}
