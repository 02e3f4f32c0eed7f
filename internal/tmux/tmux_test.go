package tmux

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"
)

type recorder struct {
	mu    sync.Mutex
	calls [][]string
	out   []byte
	err   error
}

func (r *recorder) run(_ context.Context, args ...string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, args)
	return r.out, r.err
}

func TestCapture_ArgsAndNormalize(t *testing.T) {
	r := &recorder{out: []byte("hello   \nworld\t\n\n\n")}
	c := New(r.run)

	got, err := c.Capture(context.Background(), "main:0.1")
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if got != "hello\nworld" {
		t.Errorf("Capture normalized = %q, want %q", got, "hello\nworld")
	}

	want := []string{"capture-pane", "-p", "-J", "-S", "-2000", "-t", "main:0.1"}
	if strings.Join(r.calls[0], " ") != strings.Join(want, " ") {
		t.Errorf("args = %v, want %v", r.calls[0], want)
	}
}

func TestCapture_Error(t *testing.T) {
	r := &recorder{err: errors.New("no such pane")}
	c := New(r.run)
	if _, err := c.Capture(context.Background(), "x"); err == nil {
		t.Fatal("expected error")
	}
}

func TestSendText(t *testing.T) {
	r := &recorder{}
	c := New(r.run)

	if err := c.SendText(context.Background(), "work", "Enter the dragon"); err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if len(r.calls) != 2 {
		t.Fatalf("want 2 tmux calls, got %d", len(r.calls))
	}
	lit := r.calls[0]
	if lit[0] != "send-keys" || lit[1] != "-l" || lit[len(lit)-1] != "Enter the dragon" {
		t.Errorf("literal send args = %v", lit)
	}
	if got := strings.Join(r.calls[1], " "); got != "send-keys -t work Enter" {
		t.Errorf("enter args = %q", got)
	}
}

func TestSendText_Cancelled(t *testing.T) {
	r := &recorder{}
	c := New(r.run)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := c.SendText(ctx, "work", "hi"); !errors.Is(err, context.Canceled) {
		t.Errorf("want context.Canceled, got %v", err)
	}
}

func TestChunks_RuneBoundaries(t *testing.T) {
	s := strings.Repeat("é", 10) // 20 bytes
	parts := chunks(s, 5)
	if strings.Join(parts, "") != s {
		t.Fatal("chunks must reassemble to the input")
	}
	for _, p := range parts {
		if len(p) > 5 {
			t.Errorf("chunk %q exceeds 5 bytes", p)
		}
		if !utf8.ValidString(p) {
			t.Errorf("chunk %q splits a rune", p)
		}
	}
}
