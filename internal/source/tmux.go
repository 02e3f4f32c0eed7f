package source

import (
	"context"

	"github.com/nixlim/cc-sentinel/internal/tmux"
)

// TmuxPane captures a tmux pane with its scrollback.
type TmuxPane struct {
	Client *tmux.Client
	Target string
}

func (p *TmuxPane) Capture(ctx context.Context) (string, error) {
	return p.Client.Capture(ctx, p.Target)
}
