package events

import (
	"strings"
	"testing"
)

func TestFormat(t *testing.T) {
	tests := []struct {
		name  string
		event Event
		want  string
	}{
		{
			name:  "confirmation with content",
			event: Event{Kind: KindConfirmation, Source: "main", Content: "Do you want me to continue?"},
			want:  "[main] Confirmation needed: Do you want me to continue?",
		},
		{
			name:  "captured value is shown",
			event: Event{Kind: KindTimeUntilReset, Source: "main", Content: "limit resets at 14:00", Value: "14:00"},
			want:  "[main] Limit reset time (14:00): limit resets at 14:00",
		},
		{
			name:  "multiline content is collapsed",
			event: Event{Kind: KindErrorMessage, Source: "w", Content: "Error:\n  file   not found"},
			want:  "[w] Error: Error: file not found",
		},
		{
			name:  "empty content",
			event: Event{Kind: KindSessionStart, Source: "w"},
			want:  "[w] New session",
		},
		{
			name:  "long source shortened",
			event: Event{Kind: KindSessionStart, Source: "tmux:main:0.1-long"},
			want:  "[tmux:main:0.] New session",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Format(tc.event); got != tc.want {
				t.Errorf("Format() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestFormat_TruncatesLongContent(t *testing.T) {
	e := Event{Kind: KindErrorMessage, Source: "s", Content: strings.Repeat("x", 500)}
	got := Format(e)
	if !strings.HasSuffix(got, "...") {
		t.Errorf("expected ellipsis, got %q", got)
	}
	content := strings.TrimPrefix(got, "[s] Error: ")
	if len([]rune(content)) != 120 {
		t.Errorf("expected 120 runes of content, got %d", len([]rune(content)))
	}
}

func TestKindTitle_Unknown(t *testing.T) {
	if got := Kind("other").Title(); got != "other" {
		t.Errorf("Title() = %q, want other", got)
	}
}

func TestFormatTokenCount(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1.0k"},
		{52340, "52.3k"},
	}
	for _, tc := range tests {
		if got := FormatTokenCount(tc.in); got != tc.want {
			t.Errorf("FormatTokenCount(%d) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
