// Package notify sends run summaries to a Telegram chat through the Bot API.
package notify

import (
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Notifier delivers plain-text messages to a single chat.
type Notifier struct {
	api    telegramAPI
	chatID int64
	log    *slog.Logger
}

// New creates a Notifier for the given bot token and destination chat.
func New(token string, chatID int64, log *slog.Logger) (*Notifier, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	return newWithAPI(api, chatID, log), nil
}

func newWithAPI(api telegramAPI, chatID int64, log *slog.Logger) *Notifier {
	return &Notifier{api: api, chatID: chatID, log: log}
}

// SendMessage sends text to the configured chat. Failures are logged and
// otherwise ignored. A nil Notifier does nothing.
func (n *Notifier) SendMessage(text string) {
	if n == nil {
		return
	}
	msg := tgbotapi.NewMessage(n.chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := n.api.Send(msg); err != nil {
		n.log.Error("send message", "chat_id", n.chatID, "error", err)
	}
}
