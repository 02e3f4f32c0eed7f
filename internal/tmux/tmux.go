// Package tmux wraps the tmux commands used to read and type into panes.
package tmux

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// ErrCaptureTimeout is returned when capture-pane exceeds its timeout.
var ErrCaptureTimeout = errors.New("capture-pane timed out")

// HistoryLines is how much scrollback a capture includes.
const HistoryLines = 2000

const (
	captureTimeout = 3 * time.Second
	// Enter sent in the same buffer as a bracketed paste end marker gets
	// swallowed by Ink based TUIs.
	enterDelay = 150 * time.Millisecond
	chunkSize  = 4096
)

// Runner executes tmux with args and returns stdout.
type Runner func(ctx context.Context, args ...string) ([]byte, error)

func execRunner(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "tmux", args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return out, fmt.Errorf("tmux %s: %w: %s", args[0], err, msg)
		}
		return out, fmt.Errorf("tmux %s: %w", args[0], err)
	}
	return out, nil
}

// Client talks to the tmux server.
type Client struct {
	run Runner
}

// New returns a client that shells out to tmux. A nil runner selects the
// real binary.
func New(run Runner) *Client {
	if run == nil {
		run = execRunner
	}
	return &Client{run: run}
}

// Capture returns the visible pane plus scrollback with wrapped lines
// joined and trailing blanks trimmed per line.
func (c *Client) Capture(ctx context.Context, target string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, captureTimeout)
	defer cancel()

	out, err := c.run(ctx, "capture-pane", "-p", "-J", "-S", fmt.Sprintf("-%d", HistoryLines), "-t", target)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", ErrCaptureTimeout
		}
		return "", fmt.Errorf("failed to capture pane %s: %w", target, err)
	}
	return normalize(string(out)), nil
}

// SendText types text into the pane literally and presses Enter.
func (c *Client) SendText(ctx context.Context, target, text string) error {
	for _, chunk := range chunks(text, chunkSize) {
		if _, err := c.run(ctx, "send-keys", "-l", "-t", target, "--", chunk); err != nil {
			return fmt.Errorf("sending keys to %s: %w", target, err)
		}
	}

	select {
	case <-time.After(enterDelay):
	case <-ctx.Done():
		return ctx.Err()
	}

	if _, err := c.run(ctx, "send-keys", "-t", target, "Enter"); err != nil {
		return fmt.Errorf("sending Enter to %s: %w", target, err)
	}
	return nil
}

// HasSession reports whether target resolves to a live pane.
func (c *Client) HasSession(ctx context.Context, target string) bool {
	_, err := c.run(ctx, "has-session", "-t", target)
	return err == nil
}

func normalize(content string) string {
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.TrimRight(strings.Join(lines, "\n"), "\n")
}

// chunks splits s into pieces of at most n bytes on rune boundaries.
func chunks(s string, n int) []string {
	if len(s) <= n {
		return []string{s}
	}
	var out []string
	for len(s) > n {
		cut := n
		for cut > 0 && !isRuneStart(s[cut]) {
			cut--
		}
		if cut == 0 {
			cut = n
		}
		out = append(out, s[:cut])
		s = s[cut:]
	}
	if s != "" {
		out = append(out, s)
	}
	return out
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
