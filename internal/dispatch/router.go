package dispatch

import (
	"context"
	"strings"

	"github.com/nixlim/cc-sentinel/internal/config"
	"github.com/nixlim/cc-sentinel/internal/scheduler"
	"github.com/nixlim/cc-sentinel/internal/tmux"
)

// Router sends prompts whose target starts with "tmux:" to a pane, the
// "terminal" target to the pty command when one runs, and every other
// prompt to the command.
type Router struct {
	Command  scheduler.Dispatcher
	Tmux     scheduler.Dispatcher
	Terminal scheduler.Dispatcher
}

var _ scheduler.Dispatcher = (*Router)(nil)

// New builds the default router: the configured command plus a tmux
// dispatcher backed by the tmux binary.
func New(cfg config.DispatchConfig) *Router {
	return &Router{
		Command: NewCommand(cfg),
		Tmux:    &TmuxDispatcher{Pane: tmux.New(nil)},
	}
}

func (r *Router) Dispatch(ctx context.Context, prompt, target string) (string, error) {
	if strings.HasPrefix(target, TargetPrefix) && r.Tmux != nil {
		return r.Tmux.Dispatch(ctx, prompt, target)
	}
	if target == TerminalTarget && r.Terminal != nil {
		return r.Terminal.Dispatch(ctx, prompt, target)
	}
	return r.Command.Dispatch(ctx, prompt, target)
}
