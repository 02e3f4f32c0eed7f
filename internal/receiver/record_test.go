package receiver

import (
	"sync"
	"testing"
	"time"

	collogspb "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	logspb "go.opentelemetry.io/proto/otlp/logs/v1"
	resourcepb "go.opentelemetry.io/proto/otlp/resource/v1"
)

func strAttr(k, v string) *commonpb.KeyValue {
	return &commonpb.KeyValue{Key: k, Value: &commonpb.AnyValue{Value: &commonpb.AnyValue_StringValue{StringValue: v}}}
}

func intAttr(k string, v int64) *commonpb.KeyValue {
	return &commonpb.KeyValue{Key: k, Value: &commonpb.AnyValue{Value: &commonpb.AnyValue_IntValue{IntValue: v}}}
}

// makeLogRequest builds a request holding one record with the given event
// name and attributes, with session.id on the resource.
func makeLogRequest(sessionID, eventName string, at time.Time, attrs ...*commonpb.KeyValue) *collogspb.ExportLogsServiceRequest {
	return &collogspb.ExportLogsServiceRequest{
		ResourceLogs: []*logspb.ResourceLogs{{
			Resource: &resourcepb.Resource{Attributes: []*commonpb.KeyValue{strAttr("session.id", sessionID)}},
			ScopeLogs: []*logspb.ScopeLogs{{
				LogRecords: []*logspb.LogRecord{{
					TimeUnixNano: uint64(at.UnixNano()),
					Attributes:   append([]*commonpb.KeyValue{strAttr("event.name", eventName)}, attrs...),
				}},
			}},
		}},
	}
}

type collector struct {
	mu   sync.Mutex
	recs []Record
}

func (c *collector) HandleRecord(r Record) {
	c.mu.Lock()
	c.recs = append(c.recs, r)
	c.mu.Unlock()
}

func (c *collector) records() []Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Record(nil), c.recs...)
}

func TestRecordsFromRequest(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	req := makeLogRequest("sess-1", "api_request", at, intAttr("input_tokens", 120), strAttr("model", "claude"))

	recs := recordsFromRequest(req, time.Now())
	if len(recs) != 1 {
		t.Fatalf("got %d records, want 1", len(recs))
	}
	r := recs[0]
	if r.SessionID != "sess-1" {
		t.Errorf("SessionID = %q", r.SessionID)
	}
	if r.Name != EventAPIRequest {
		t.Errorf("Name = %q, want %q", r.Name, EventAPIRequest)
	}
	if !r.Timestamp.Equal(at) {
		t.Errorf("Timestamp = %v, want %v", r.Timestamp, at)
	}
	if n, ok := r.Int("input_tokens"); !ok || n != 120 {
		t.Errorf("input_tokens = %d, %v", n, ok)
	}
	if _, ok := r.Int("model"); ok {
		t.Error("non-numeric attribute should not parse")
	}
}

func TestRecordsFromRequest_Fallbacks(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	req := &collogspb.ExportLogsServiceRequest{
		ResourceLogs: []*logspb.ResourceLogs{{
			ScopeLogs: []*logspb.ScopeLogs{{
				LogRecords: []*logspb.LogRecord{{
					EventName:  "claude_code.user_prompt",
					Attributes: []*commonpb.KeyValue{strAttr("session.id", "attr-session")},
				}, {
					Body: &commonpb.AnyValue{Value: &commonpb.AnyValue_StringValue{StringValue: "claude_code.api_error"}},
				}},
			}},
		}},
	}

	recs := recordsFromRequest(req, now)
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}
	if recs[0].SessionID != "attr-session" || recs[0].Name != EventUserPrompt {
		t.Errorf("first record = %+v", recs[0])
	}
	if !recs[0].Timestamp.Equal(now) {
		t.Errorf("missing timestamp should fall back to now, got %v", recs[0].Timestamp)
	}
	if recs[1].Name != EventAPIError || recs[1].SessionID != "" {
		t.Errorf("second record = %+v", recs[1])
	}
}

func TestDispatchRecords_RecoversFromPanic(t *testing.T) {
	calls := 0
	h := HandlerFunc(func(r Record) {
		calls++
		if r.Name == "boom" {
			panic("handler failure")
		}
	})
	dispatchRecords([]Record{{Name: "boom"}, {Name: "ok"}}, h, NopLogger{})
	if calls != 2 {
		t.Errorf("handler called %d times, want 2", calls)
	}
}
