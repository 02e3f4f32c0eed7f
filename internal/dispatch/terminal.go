package dispatch

import (
	"context"
	"time"
)

// TerminalTarget sends a job to the command run under the pseudo-terminal.
const TerminalTarget = "terminal"

// Screen is a terminal that can be read and typed into.
type Screen interface {
	Capture(ctx context.Context) (string, error)
	Send(ctx context.Context, text string) error
}

// TerminalDispatcher types the prompt into a Screen and returns what the
// screen showed during the settle period.
type TerminalDispatcher struct {
	Screen Screen
	Settle time.Duration
}

func (t *TerminalDispatcher) Dispatch(ctx context.Context, prompt, _ string) (string, error) {
	return sendAndWatch(ctx, TerminalTarget, t.Settle,
		t.Screen.Capture,
		func(ctx context.Context) error { return t.Screen.Send(ctx, prompt) },
	)
}
