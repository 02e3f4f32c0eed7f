package alerts

import (
	"strings"
	"sync"
	"testing"
	"time"
)

func TestShortSource(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"file:log", "file:log"},
		{"tmux:main:0.1", "tmux:main:0.1"},
		{strings.Repeat("a", 24), strings.Repeat("a", 24)},
		{strings.Repeat("a", 30), strings.Repeat("a", 23) + "…"},
		{strings.Repeat("é", 30), strings.Repeat("é", 23) + "…"},
	}
	for _, tt := range tests {
		if got := shortSource(tt.in); got != tt.want {
			t.Errorf("shortSource(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNewPlatformNotifier_Disabled(t *testing.T) {
	if _, ok := NewPlatformNotifier(false).(Nop); !ok {
		t.Error("disabled notifier should be Nop")
	}
}

func TestDesktopNotify(t *testing.T) {
	if !desktopSupported {
		t.Skip("no desktop notification command on this platform")
	}

	var mu sync.Mutex
	var gotName string
	var gotArgs []string
	done := make(chan struct{})
	d := &Desktop{enabled: true, run: func(name string, args ...string) error {
		mu.Lock()
		gotName, gotArgs = name, args
		mu.Unlock()
		close(done)
		return nil
	}}

	d.Notify(Alert{
		Rule:     RuleSessionLimitExceeded,
		Severity: SeverityCritical,
		Message:  `limit "reached"`,
		Source:   "tmux:main",
	})
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("notification command not run")
	}

	mu.Lock()
	defer mu.Unlock()
	if gotName == "" || len(gotArgs) == 0 {
		t.Fatalf("empty command %q %q", gotName, gotArgs)
	}
	joined := strings.Join(gotArgs, " ")
	for _, want := range []string{RuleSessionLimitExceeded, "tmux:main", "limit"} {
		if !strings.Contains(joined, want) {
			t.Errorf("command args %q missing %q", joined, want)
		}
	}
}

func TestDesktopNotify_DisabledSkipsCommand(t *testing.T) {
	d := &Desktop{run: func(string, ...string) error {
		t.Error("command run while disabled")
		return nil
	}}
	d.Notify(Alert{Rule: RuleError, Message: "x"})
	time.Sleep(20 * time.Millisecond)
}
