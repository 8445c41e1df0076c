package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"pagewatch/internal/model"
)

// maxMessageRunes is Telegram's limit for a single text message.
const maxMessageRunes = 4096

// Sender sends a Telegram message.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramSink sends notifications to a single Telegram chat.
type TelegramSink struct {
	api    Sender
	chatID int64
}

// NewTelegramSink creates a sink that posts to chatID.
func NewTelegramSink(api Sender, chatID int64) *TelegramSink {
	return &TelegramSink{api: api, chatID: chatID}
}

// NotifyChange sends a formatted change message.
func (s *TelegramSink) NotifyChange(_ context.Context, ev model.ChangeEvent) error {
	return s.send(FormatChange(ev))
}

// NotifyError sends a formatted error message.
func (s *TelegramSink) NotifyError(_ context.Context, ev model.ErrorEvent) error {
	return s.send(FormatError(ev))
}

func (s *TelegramSink) send(text string) error {
	msg := tgbotapi.NewMessage(s.chatID, Clip(text, maxMessageRunes))
	msg.DisableWebPagePreview = true
	if _, err := s.api.Send(msg); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	return nil
}

// Clip shortens text to at most n runes, marking the cut with an ellipsis.
func Clip(text string, n int) string {
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n-1]) + "…"
}
