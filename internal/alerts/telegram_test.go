package alerts

import (
	"errors"
	"strings"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type fakeBot struct {
	mu   sync.Mutex
	sent []tgbotapi.MessageConfig
	err  error
}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, msg)
	}
	return tgbotapi.Message{}, f.err
}

func TestTelegramNotifier_Sends(t *testing.T) {
	bot := &fakeBot{}
	n := newTelegramNotifier(bot, 42)

	n.Notify(Alert{Rule: RuleSessionLimitExceeded, Severity: SeverityCritical, Message: "limit reached", Source: "main"})
	n.Close()

	if len(bot.sent) != 1 {
		t.Fatalf("expected 1 message, got %d", len(bot.sent))
	}
	msg := bot.sent[0]
	if msg.ChatID != 42 {
		t.Errorf("chat id = %d, want 42", msg.ChatID)
	}
	for _, want := range []string{"SessionLimitExceeded", "limit reached", "Source: main"} {
		if !strings.Contains(msg.Text, want) {
			t.Errorf("message %q missing %q", msg.Text, want)
		}
	}
}

func TestTelegramNotifier_SendErrorIsNotFatal(t *testing.T) {
	bot := &fakeBot{err: errors.New("network down")}
	n := newTelegramNotifier(bot, 1)
	n.Notify(Alert{Rule: RuleError})
	n.Notify(Alert{Rule: RuleError})
	n.Close()

	if len(bot.sent) != 2 {
		t.Errorf("expected both sends attempted, got %d", len(bot.sent))
	}
}

func TestTelegramNotifier_NotifyAfterClose(t *testing.T) {
	n := newTelegramNotifier(&fakeBot{}, 1)
	n.Close()
	n.Close()
	// Must not panic.
	n.Notify(Alert{Rule: RuleError})
}

func TestTelegramText_Truncated(t *testing.T) {
	text := telegramText(Alert{Rule: RuleError, Message: strings.Repeat("x", 5000)})
	if len(text) > telegramMaxLen {
		t.Errorf("text length %d exceeds %d", len(text), telegramMaxLen)
	}
}
