// Package dispatch sends scheduled prompts to the observed application,
// either by running a command per prompt or by typing into a tmux pane.
package dispatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/nixlim/cc-sentinel/internal/config"
	"github.com/nixlim/cc-sentinel/internal/process"
)

const (
	promptPlaceholder = "{prompt}"
	targetPlaceholder = "{target}"
)

// ErrTimeout is returned when the command outlives its context deadline.
var ErrTimeout = errors.New("dispatch timed out")

// Command runs Name with Args once per prompt and returns its stdout.
type Command struct {
	Name string
	Args []string
}

// NewCommand builds a Command from the [dispatch] config section.
func NewCommand(cfg config.DispatchConfig) *Command {
	return &Command{Name: cfg.Command, Args: append([]string(nil), cfg.Args...)}
}

// Argv expands the placeholders. The prompt is appended when no argument
// mentions {prompt}. With an empty target, an argument that is exactly
// {target} is dropped along with a preceding flag.
func (c *Command) Argv(prompt, target string) []string {
	out := make([]string, 0, len(c.Args)+1)
	sawPrompt := false
	for _, a := range c.Args {
		if a == targetPlaceholder && target == "" {
			if n := len(out); n > 0 && strings.HasPrefix(out[n-1], "-") {
				out = out[:n-1]
			}
			continue
		}
		if strings.Contains(a, promptPlaceholder) {
			sawPrompt = true
		}
		a = strings.ReplaceAll(a, promptPlaceholder, prompt)
		a = strings.ReplaceAll(a, targetPlaceholder, target)
		out = append(out, a)
	}
	if !sawPrompt {
		out = append(out, prompt)
	}
	return out
}

func (c *Command) Dispatch(ctx context.Context, prompt, target string) (string, error) {
	if c.Name == "" {
		return "", errors.New("no dispatch command configured")
	}
	path, err := exec.LookPath(c.Name)
	if err != nil {
		return "", fmt.Errorf("locate %s: %w", c.Name, err)
	}

	cmd := exec.CommandContext(ctx, path, c.Argv(prompt, target)...)
	process.Isolate(cmd, 2*time.Second)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return stdout.String(), ErrTimeout
		}
		return stdout.String(), formatError(c.Name, err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(stdout.String()), nil
}

func formatError(name string, err error, stderr string) error {
	if stderr == "" {
		return fmt.Errorf("%s: %w", name, err)
	}
	return fmt.Errorf("%s: %w: %s", name, err, stderr)
}
