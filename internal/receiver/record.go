// Package receiver accepts OTLP log exports from Claude Code over gRPC and
// HTTP and hands each decoded log record to a Handler.
package receiver

import (
	"strconv"
	"strings"
	"time"

	collogspb "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
)

// Event names emitted by Claude Code.
const (
	EventAPIRequest = "claude_code.api_request"
	EventUserPrompt = "claude_code.user_prompt"
	EventAPIError   = "claude_code.api_error"
)

// Record is one decoded OTLP log record.
type Record struct {
	SessionID  string
	Name       string
	Attributes map[string]string
	Timestamp  time.Time
}

// Int returns the integer value of attribute key.
func (r Record) Int(key string) (int, bool) {
	v, ok := r.Attributes[key]
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Handler consumes decoded records. Implementations must be safe for
// concurrent use.
type Handler interface {
	HandleRecord(r Record)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(Record)

func (f HandlerFunc) HandleRecord(r Record) { f(r) }

// recordsFromRequest flattens an export request. The session id comes from
// the record attributes and falls back to the resource attributes; the
// event name comes from EventName, then the event.name attribute.
func recordsFromRequest(req *collogspb.ExportLogsServiceRequest, now time.Time) []Record {
	var out []Record
	for _, rl := range req.GetResourceLogs() {
		resAttrs := attributeMap(rl.GetResource().GetAttributes())
		for _, sl := range rl.GetScopeLogs() {
			for _, lr := range sl.GetLogRecords() {
				attrs := attributeMap(lr.GetAttributes())

				sessionID := attrs["session.id"]
				if sessionID == "" {
					sessionID = resAttrs["session.id"]
				}
				name := lr.GetEventName()
				if name == "" {
					name = attrs["event.name"]
					if name != "" && !strings.HasPrefix(name, "claude_code.") {
						name = "claude_code." + name
					}
				}
				if name == "" {
					name = lr.GetBody().GetStringValue()
				}

				ts := now
				if n := lr.GetTimeUnixNano(); n > 0 {
					ts = time.Unix(0, int64(n))
				} else if n := lr.GetObservedTimeUnixNano(); n > 0 {
					ts = time.Unix(0, int64(n))
				}

				out = append(out, Record{
					SessionID:  sessionID,
					Name:       name,
					Attributes: attrs,
					Timestamp:  ts,
				})
			}
		}
	}
	return out
}

func attributeMap(kvs []*commonpb.KeyValue) map[string]string {
	if len(kvs) == 0 {
		return map[string]string{}
	}
	m := make(map[string]string, len(kvs))
	for _, kv := range kvs {
		m[kv.GetKey()] = anyValueString(kv.GetValue())
	}
	return m
}

func anyValueString(v *commonpb.AnyValue) string {
	switch x := v.GetValue().(type) {
	case *commonpb.AnyValue_StringValue:
		return x.StringValue
	case *commonpb.AnyValue_IntValue:
		return strconv.FormatInt(x.IntValue, 10)
	case *commonpb.AnyValue_DoubleValue:
		return strconv.FormatFloat(x.DoubleValue, 'f', -1, 64)
	case *commonpb.AnyValue_BoolValue:
		return strconv.FormatBool(x.BoolValue)
	default:
		return ""
	}
}
