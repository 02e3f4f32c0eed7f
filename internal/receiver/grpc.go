package receiver

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"syscall"
	"time"

	collogspb "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	"google.golang.org/grpc"

	"github.com/nixlim/cc-sentinel/internal/config"
)

// GRPCReceiver serves the OTLP LogsService.
type GRPCReceiver struct {
	collogspb.UnimplementedLogsServiceServer

	cfg      config.ReceiverConfig
	handler  Handler
	logger   Logger
	server   *grpc.Server
	listener net.Listener
	now      func() time.Time
}

func NewGRPCReceiver(cfg config.ReceiverConfig, h Handler, logger Logger) *GRPCReceiver {
	if logger == nil {
		logger = NopLogger{}
	}
	return &GRPCReceiver{cfg: cfg, handler: h, logger: logger, now: time.Now}
}

// Start binds the configured port and serves in the background.
func (r *GRPCReceiver) Start(ctx context.Context) error {
	lis, err := listen(r.cfg.Bind, r.cfg.GRPCPort)
	if err != nil {
		return err
	}
	r.listener = lis
	r.server = grpc.NewServer()
	collogspb.RegisterLogsServiceServer(r.server, r)

	go func() {
		if err := r.server.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			log.Printf("ERROR: gRPC receiver stopped: %v", err)
		}
	}()
	return nil
}

// Export implements the OTLP LogsService.
func (r *GRPCReceiver) Export(_ context.Context, req *collogspb.ExportLogsServiceRequest) (*collogspb.ExportLogsServiceResponse, error) {
	dispatchRecords(recordsFromRequest(req, r.now()), r.handler, r.logger)
	return &collogspb.ExportLogsServiceResponse{}, nil
}

func (r *GRPCReceiver) Addr() net.Addr {
	if r.listener == nil {
		return nil
	}
	return r.listener.Addr()
}

func (r *GRPCReceiver) Stop() {
	if r.server == nil {
		return
	}
	done := make(chan struct{})
	go func() {
		r.server.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		r.server.Stop()
	}
}

func listen(bind string, port int) (net.Listener, error) {
	lis, err := net.Listen("tcp", net.JoinHostPort(bind, fmt.Sprint(port)))
	if err != nil {
		if errors.Is(err, syscall.EADDRINUSE) {
			return nil, fmt.Errorf("port %d already in use", port)
		}
		return nil, fmt.Errorf("listening on %s:%d: %w", bind, port, err)
	}
	return lis, nil
}

func dispatchRecords(recs []Record, h Handler, logger Logger) {
	for _, rec := range recs {
		logger.LogRecord(rec)
		if h == nil {
			continue
		}
		func() {
			defer func() {
				if p := recover(); p != nil {
					log.Printf("ERROR: receiver handler panic on %s: %v", rec.Name, p)
				}
			}()
			h.HandleRecord(rec)
		}()
	}
}
