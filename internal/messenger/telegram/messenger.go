package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/gosuda/taskbot/internal/conversation"
	"github.com/gosuda/taskbot/internal/domain"
	"github.com/gosuda/taskbot/internal/messenger"
)

const (
	maxMessageLen = 4096
	maxCaptionLen = 1024
)

// Sender is the subset of the Bot API used to deliver messages.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramMessenger implements messenger.Messenger for Telegram. Addresses
// are chat ids; for private chats that is the user id.
type TelegramMessenger struct {
	bot Sender
}

// Compile-time interface check.
var _ messenger.Messenger = (*TelegramMessenger)(nil) //nolint:gochecknoglobals // compile-time check

func NewTelegramMessenger(bot Sender) *TelegramMessenger {
	return &TelegramMessenger{bot: bot}
}

// SendMessage posts text, split into several messages when it exceeds
// Telegram's length limit. The id of the last part is returned.
func (m *TelegramMessenger) SendMessage(_ context.Context, to, text string) (messenger.MessageID, error) {
	chatID, err := parseChatID(to)
	if err != nil {
		return "", fmt.Errorf("telegram.TelegramMessenger.SendMessage: %w", err)
	}

	id, err := m.sendText(chatID, text)
	if err != nil {
		return "", fmt.Errorf("telegram.TelegramMessenger.SendMessage: %w", err)
	}
	return id, nil
}

// SendDocument sends the document by Telegram file id, or by URL when the
// document came from elsewhere.
func (m *TelegramMessenger) SendDocument(_ context.Context, to string, doc domain.Attachment, caption string) (messenger.MessageID, error) {
	chatID, err := parseChatID(to)
	if err != nil {
		return "", fmt.Errorf("telegram.TelegramMessenger.SendDocument: %w", err)
	}

	id, err := m.sendDocument(chatID, doc, caption)
	if err != nil {
		return "", fmt.Errorf("telegram.TelegramMessenger.SendDocument: %w", err)
	}
	return id, nil
}

// Reply answers an inbound message in chatID.
func (m *TelegramMessenger) Reply(_ context.Context, chatID int64, reply conversation.Reply) error {
	var err error
	if reply.Document != nil {
		_, err = m.sendDocument(chatID, *reply.Document, reply.Text)
	} else {
		_, err = m.sendText(chatID, reply.Text)
	}
	if err != nil {
		return fmt.Errorf("telegram.TelegramMessenger.Reply: %w", err)
	}
	return nil
}

// Platform returns the messenger platform identifier.
func (m *TelegramMessenger) Platform() string {
	return messenger.PlatformTelegram
}

func (m *TelegramMessenger) sendText(chatID int64, text string) (messenger.MessageID, error) {
	var last tgbotapi.Message
	for _, part := range splitMessage(text, maxMessageLen) {
		sent, err := m.bot.Send(tgbotapi.NewMessage(chatID, part))
		if err != nil {
			return "", err
		}
		last = sent
	}
	return messenger.MessageID(strconv.Itoa(last.MessageID)), nil
}

func (m *TelegramMessenger) sendDocument(chatID int64, doc domain.Attachment, caption string) (messenger.MessageID, error) {
	var file tgbotapi.RequestFileData = tgbotapi.FileID(doc.ID)
	if doc.URL != "" {
		file = tgbotapi.FileURL(doc.URL)
	}

	cfg := tgbotapi.NewDocument(chatID, file)
	overflow := ""
	if len([]rune(caption)) <= maxCaptionLen {
		cfg.Caption = caption
	} else {
		overflow = caption
	}

	sent, err := m.bot.Send(cfg)
	if err != nil {
		return "", err
	}
	if overflow != "" {
		return m.sendText(chatID, overflow)
	}
	return messenger.MessageID(strconv.Itoa(sent.MessageID)), nil
}

func parseChatID(to string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(to), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid chat id %q: %w", to, err)
	}
	return id, nil
}

// splitMessage cuts text into parts of at most limit runes, preferring to cut
// after a newline in the second half of a part.
func splitMessage(text string, limit int) []string {
	runes := []rune(text)
	if len(runes) <= limit {
		return []string{text}
	}

	var parts []string
	for len(runes) > limit {
		cut := limit
		for i := limit; i > limit/2; i-- {
			if runes[i-1] == '\n' {
				cut = i
				break
			}
		}
		parts = append(parts, strings.TrimRight(string(runes[:cut]), "\n"))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		parts = append(parts, string(runes))
	}
	return parts
}
