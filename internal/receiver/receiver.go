package receiver

import (
	"context"
	"fmt"

	"github.com/nixlim/cc-sentinel/internal/config"
)

// Receiver runs the gRPC and HTTP endpoints together.
type Receiver struct {
	GRPC *GRPCReceiver
	HTTP *HTTPReceiver
}

// Start starts both endpoints. If the second fails the first is stopped.
func (r *Receiver) Start(ctx context.Context) error {
	if err := r.GRPC.Start(ctx); err != nil {
		return fmt.Errorf("starting gRPC receiver: %w", err)
	}
	if err := r.HTTP.Start(ctx); err != nil {
		r.GRPC.Stop()
		return fmt.Errorf("starting HTTP receiver: %w", err)
	}
	return nil
}

func (r *Receiver) Stop() {
	r.GRPC.Stop()
	r.HTTP.Stop()
}

// New builds both endpoints around one handler and logger.
func New(cfg config.ReceiverConfig, h Handler, logger Logger) *Receiver {
	return &Receiver{
		GRPC: NewGRPCReceiver(cfg, h, logger),
		HTTP: NewHTTPReceiver(cfg, h, logger),
	}
}
