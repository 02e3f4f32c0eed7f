package receiver

import (
	"context"
	"errors"
	"io"
	"log"
	"mime"
	"net"
	"net/http"
	"time"

	collogspb "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	"github.com/nixlim/cc-sentinel/internal/config"
)

const maxBodyBytes = 8 << 20

// HTTPReceiver serves OTLP/HTTP at /v1/logs in protobuf or JSON.
type HTTPReceiver struct {
	cfg      config.ReceiverConfig
	handler  Handler
	logger   Logger
	server   *http.Server
	listener net.Listener
	now      func() time.Time
}

func NewHTTPReceiver(cfg config.ReceiverConfig, h Handler, logger Logger) *HTTPReceiver {
	if logger == nil {
		logger = NopLogger{}
	}
	return &HTTPReceiver{cfg: cfg, handler: h, logger: logger, now: time.Now}
}

func (r *HTTPReceiver) Start(ctx context.Context) error {
	lis, err := listen(r.cfg.Bind, r.cfg.HTTPPort)
	if err != nil {
		return err
	}
	r.listener = lis

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/logs", r.handleLogs)
	r.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		if err := r.server.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("ERROR: HTTP receiver stopped: %v", err)
		}
	}()
	return nil
}

func (r *HTTPReceiver) handleLogs(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(req.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "reading body", http.StatusBadRequest)
		return
	}

	isJSON := false
	if mt, _, err := mime.ParseMediaType(req.Header.Get("Content-Type")); err == nil && mt == "application/json" {
		isJSON = true
	}

	var export collogspb.ExportLogsServiceRequest
	if isJSON {
		err = protojson.Unmarshal(body, &export)
	} else {
		err = proto.Unmarshal(body, &export)
	}
	if err != nil {
		http.Error(w, "invalid OTLP payload", http.StatusBadRequest)
		return
	}

	dispatchRecords(recordsFromRequest(&export, r.now()), r.handler, r.logger)

	resp := &collogspb.ExportLogsServiceResponse{}
	var out []byte
	if isJSON {
		w.Header().Set("Content-Type", "application/json")
		out, err = protojson.Marshal(resp)
	} else {
		w.Header().Set("Content-Type", "application/x-protobuf")
		out, err = proto.Marshal(resp)
	}
	if err != nil {
		http.Error(w, "encoding response", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}

func (r *HTTPReceiver) Addr() net.Addr {
	if r.listener == nil {
		return nil
	}
	return r.listener.Addr()
}

func (r *HTTPReceiver) Stop() {
	if r.server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = r.server.Shutdown(ctx)
}
