package process

import (
	"bytes"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
)

// Telemetry classifies how a Claude process exports its events.
type Telemetry int

const (
	TelemetryOK          Telemetry = iota // otlp to the receiver port
	TelemetryWrongPort                    // otlp to another endpoint
	TelemetryConsoleOnly                  // enabled without an otlp logs exporter
	TelemetryOff                          // not enabled
	TelemetryUnknown                      // environment unreadable
)

func (t Telemetry) String() string {
	switch t {
	case TelemetryOK:
		return "reporting"
	case TelemetryWrongPort:
		return "wrong endpoint"
	case TelemetryConsoleOnly:
		return "no otlp exporter"
	case TelemetryOff:
		return "telemetry off"
	default:
		return "unknown"
	}
}

// Claude is a running Claude Code process owned by the current user.
type Claude struct {
	PID  int
	Args []string
	CWD  string
	// Env is nil when the environment could not be read.
	Env map[string]string
}

// Telemetry classifies p against the receiver on grpcPort. Keys missing
// from the process environment are looked up in settings, the env block
// of ~/.claude/settings.json.
func (p Claude) Telemetry(settings map[string]string, grpcPort int) Telemetry {
	if p.Env == nil {
		return TelemetryUnknown
	}
	get := func(key string) string {
		if v, ok := p.Env[key]; ok {
			return v
		}
		return settings[key]
	}

	if get("CLAUDE_CODE_ENABLE_TELEMETRY") != "1" {
		return TelemetryOff
	}
	if !strings.Contains(get("OTEL_LOGS_EXPORTER"), "otlp") {
		return TelemetryConsoleOnly
	}
	endpoint := get("OTEL_EXPORTER_OTLP_LOGS_ENDPOINT")
	if endpoint == "" {
		endpoint = get("OTEL_EXPORTER_OTLP_ENDPOINT")
	}
	if endpointPort(endpoint) != grpcPort {
		return TelemetryWrongPort
	}
	return TelemetryOK
}

// endpointPort returns the port of an OTLP endpoint URL, or the OTLP gRPC
// default when none is given.
func endpointPort(endpoint string) int {
	if endpoint == "" {
		return 4317
	}
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return 0
	}
	if p := u.Port(); p != "" {
		n, _ := strconv.Atoi(p)
		return n
	}
	return 4317
}

// isClaude matches the native binary and the npm install run by node.
func isClaude(comm string, args []string) bool {
	if comm == "claude" {
		return true
	}
	if len(args) == 0 {
		return false
	}
	if filepath.Base(args[0]) == "claude" {
		return true
	}
	if !strings.HasPrefix(filepath.Base(args[0]), "node") {
		return false
	}
	for _, a := range args[1:] {
		if strings.Contains(a, "@anthropic-ai/claude-code") || filepath.Base(a) == "claude" {
			return true
		}
	}
	return false
}

// splitNul splits a NUL separated /proc record.
func splitNul(data []byte) []string {
	data = bytes.TrimRight(data, "\x00")
	if len(data) == 0 {
		return nil
	}
	parts := bytes.Split(data, []byte{0})
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = string(p)
	}
	return out
}

func parseEnviron(data []byte) map[string]string {
	env := make(map[string]string)
	for _, kv := range splitNul(data) {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	return env
}
