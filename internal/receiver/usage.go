package receiver

import (
	"fmt"

	"github.com/nixlim/cc-sentinel/internal/limits"
	"github.com/nixlim/cc-sentinel/internal/tokens"
)

// SourcePrefix marks ledger and tracker sources fed by telemetry.
const SourcePrefix = "otel:"

// UsageHandler turns Claude Code telemetry into ledger entries and limit
// tracking. Records without a session id are ignored.
type UsageHandler struct {
	Ledger  *tokens.Ledger
	Tracker *limits.Tracker
}

func (h *UsageHandler) HandleRecord(r Record) {
	if r.SessionID == "" {
		return
	}
	source := SourcePrefix + r.SessionID

	if h.Tracker != nil {
		h.Tracker.StartTracking(source, r.Timestamp, 0)
	}

	switch r.Name {
	case EventAPIRequest:
		in, okIn := r.Int("input_tokens")
		out, okOut := r.Int("output_tokens")
		if !okIn && !okOut {
			return
		}
		n := in + out
		if h.Ledger != nil {
			h.Ledger.RecordUsage(source, "", &n, r.Timestamp)
		}

	case EventUserPrompt:
		if prompt := r.Attributes["prompt"]; prompt != "" && h.Ledger != nil {
			h.Ledger.RecordUsage(source, prompt, nil, r.Timestamp)
		}

	case EventAPIError:
		if r.Attributes["status_code"] != "429" || h.Tracker == nil {
			return
		}
		msg := r.Attributes["error"]
		if msg == "" {
			msg = "rate limited by the API"
		}
		h.Tracker.RecordExternal(source, fmt.Sprintf("api error 429: %s", msg), r.Timestamp)
	}
}

var _ Handler = (*UsageHandler)(nil)
