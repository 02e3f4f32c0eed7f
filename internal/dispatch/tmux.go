package dispatch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nixlim/cc-sentinel/internal/differ"
	"github.com/nixlim/cc-sentinel/internal/tmux"
)

// TargetPrefix marks a job target that names a tmux pane.
const TargetPrefix = "tmux:"

const defaultSettle = 5 * time.Second

// Pane is the part of the tmux client the pane dispatcher needs.
type Pane interface {
	Capture(ctx context.Context, target string) (string, error)
	SendText(ctx context.Context, target, text string) error
}

var _ Pane = (*tmux.Client)(nil)

// TmuxDispatcher types the prompt into a pane and returns what the pane
// printed during the settle period.
type TmuxDispatcher struct {
	Pane   Pane
	Settle time.Duration
}

func (t *TmuxDispatcher) Dispatch(ctx context.Context, prompt, target string) (string, error) {
	pane := strings.TrimPrefix(target, TargetPrefix)
	if pane == "" {
		return "", fmt.Errorf("no tmux pane in target %q", target)
	}

	return sendAndWatch(ctx, pane, t.Settle,
		func(ctx context.Context) (string, error) { return t.Pane.Capture(ctx, pane) },
		func(ctx context.Context) error { return t.Pane.SendText(ctx, pane, prompt) },
	)
}

// sendAndWatch captures the screen, sends, waits for settle and returns
// the text that appeared meanwhile. name is reported when nothing did.
func sendAndWatch(ctx context.Context, name string, settle time.Duration,
	capture func(context.Context) (string, error), send func(context.Context) error) (string, error) {
	d := differ.New()
	before, err := capture(ctx)
	if err != nil {
		return "", err
	}
	d.Diff(name, before)

	if err := send(ctx); err != nil {
		return "", err
	}

	if settle <= 0 {
		settle = defaultSettle
	}
	timer := time.NewTimer(settle)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		// The prompt went out; report what is on screen so far.
	}

	capCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
	defer cancel()
	after, err := capture(capCtx)
	if err != nil {
		return "sent to " + name, nil
	}
	if frag, ok := d.Diff(name, after); ok {
		return strings.TrimSpace(frag), nil
	}
	return "sent to " + name, nil
}
