package receiver

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	collogspb "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	"github.com/nixlim/cc-sentinel/internal/config"
)

func startTestHTTP(t *testing.T, h Handler) string {
	t.Helper()

	r := NewHTTPReceiver(config.ReceiverConfig{HTTPPort: 0, Bind: "127.0.0.1"}, h, nil)
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(r.Stop)
	return fmt.Sprintf("http://%s/v1/logs", r.Addr())
}

func post(t *testing.T, url, contentType string, body []byte) *http.Response {
	t.Helper()
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Post(url, contentType, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHTTPReceiver_Logs(t *testing.T) {
	req := makeLogRequest("sess-http", "user_prompt", time.Now(), strAttr("prompt", "hello there"))

	t.Run("protobuf_content_type", func(t *testing.T) {
		c := &collector{}
		url := startTestHTTP(t, c)

		body, err := proto.Marshal(req)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		resp := post(t, url, "application/x-protobuf", body)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d", resp.StatusCode)
		}
		if got := c.records(); len(got) != 1 || got[0].Name != EventUserPrompt {
			t.Errorf("records = %+v", got)
		}
	})

	t.Run("json_content_type", func(t *testing.T) {
		c := &collector{}
		url := startTestHTTP(t, c)

		body, err := protojson.Marshal(req)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		resp := post(t, url, "application/json; charset=utf-8", body)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d", resp.StatusCode)
		}
		if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		got := c.records()
		if len(got) != 1 || got[0].Attributes["prompt"] != "hello there" {
			t.Errorf("records = %+v", got)
		}
	})
}

func TestHTTPReceiver_InvalidPayload(t *testing.T) {
	c := &collector{}
	url := startTestHTTP(t, c)

	resp := post(t, url, "application/x-protobuf", []byte{0xff, 0xff, 0xff})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}

	// The server keeps serving after a bad request.
	body, _ := proto.Marshal(&collogspb.ExportLogsServiceRequest{})
	resp = post(t, url, "application/x-protobuf", body)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status after recovery = %d, want 200", resp.StatusCode)
	}
}

func TestHTTPReceiver_MethodNotAllowed(t *testing.T) {
	url := startTestHTTP(t, nil)
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", resp.StatusCode)
	}
}
