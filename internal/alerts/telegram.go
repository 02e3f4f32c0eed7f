package alerts

import (
	"fmt"
	"log"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	telegramQueueSize = 64
	telegramMaxLen    = 4000
)

// telegramAPI is the subset of *tgbotapi.BotAPI used for delivery.
type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier forwards alerts to one Telegram chat. Messages are queued
// and sent from a single goroutine; a full queue drops the alert.
type TelegramNotifier struct {
	api    telegramAPI
	chatID int64
	queue  chan Alert
	done   chan struct{}
	once   sync.Once
}

// NewTelegramNotifier connects to the Bot API with token.
func NewTelegramNotifier(token string, chatID int64) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("connecting to telegram: %w", err)
	}
	return newTelegramNotifier(bot, chatID), nil
}

func newTelegramNotifier(api telegramAPI, chatID int64) *TelegramNotifier {
	n := &TelegramNotifier{
		api:    api,
		chatID: chatID,
		queue:  make(chan Alert, telegramQueueSize),
		done:   make(chan struct{}),
	}
	go n.loop()
	return n
}

func (n *TelegramNotifier) Notify(alert Alert) {
	defer func() { _ = recover() }() // queue closed
	select {
	case n.queue <- alert:
	default:
		log.Printf("WARNING: telegram queue full, dropped alert (rule=%s)", alert.Rule)
	}
}

// Close stops accepting alerts and waits for queued ones to be sent.
func (n *TelegramNotifier) Close() {
	n.once.Do(func() { close(n.queue) })
	<-n.done
}

func (n *TelegramNotifier) loop() {
	defer close(n.done)
	for alert := range n.queue {
		msg := tgbotapi.NewMessage(n.chatID, telegramText(alert))
		if _, err := n.api.Send(msg); err != nil {
			log.Printf("WARNING: failed to send telegram alert: %v", err)
		}
	}
}

func telegramText(alert Alert) string {
	icon := "ℹ️"
	switch alert.Severity {
	case SeverityWarning:
		icon = "⚠️"
	case SeverityCritical:
		icon = "🔴"
	}
	text := fmt.Sprintf("%s %s\n%s", icon, alert.Rule, alert.Message)
	if alert.Source != "" {
		text += "\nSource: " + alert.Source
	}
	if len(text) > telegramMaxLen {
		text = text[:telegramMaxLen]
	}
	return text
}
