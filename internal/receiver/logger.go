package receiver

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/nixlim/cc-sentinel/internal/events"
)

// Logger writes the debug trail of ingested records and classified
// events. Implementations must be safe for concurrent use.
type Logger interface {
	LogRecord(r Record)
	LogEvent(e events.Event)
}

// NopLogger discards all log output. It is the default when debug logging
// is not enabled.
type NopLogger struct{}

func (NopLogger) LogRecord(Record)       {}
func (NopLogger) LogEvent(events.Event) {}

// logEntry is the JSON structure written by FileLogger.
type logEntry struct {
	Timestamp  string            `json:"ts"`
	Type       string            `json:"type"`
	Source     string            `json:"source"`
	Name       string            `json:"name"`
	Content    string            `json:"content,omitempty"`
	Attributes map[string]string `json:"attrs,omitempty"`
}

// FileLogger writes one JSON object per line to an io.Writer.
type FileLogger struct {
	w  io.Writer
	mu sync.Mutex
}

func NewFileLogger(w io.Writer) *FileLogger {
	return &FileLogger{w: w}
}

func (l *FileLogger) LogRecord(r Record) {
	l.write(logEntry{
		Timestamp:  stamp(r.Timestamp),
		Type:       "record",
		Source:     r.SessionID,
		Name:       r.Name,
		Attributes: r.Attributes,
	})
}

func (l *FileLogger) LogEvent(e events.Event) {
	var attrs map[string]string
	if e.Value != "" {
		attrs = map[string]string{"value": e.Value, "pattern": e.MatchedPattern}
	}
	l.write(logEntry{
		Timestamp:  stamp(e.OccurredAt),
		Type:       "event",
		Source:     e.Source,
		Name:       string(e.Kind),
		Content:    e.Content,
		Attributes: attrs,
	})
}

func stamp(ts time.Time) string {
	if ts.IsZero() {
		ts = time.Now()
	}
	return ts.UTC().Format(time.RFC3339Nano)
}

// write serialises entry as a single line. Errors are dropped so the debug
// trail never disrupts ingestion.
func (l *FileLogger) write(entry logEntry) {
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.w, "%s\n", data)
}
