package messenger

import (
	"context"

	"github.com/gosuda/taskbot/internal/domain"
)

// MessageID uniquely identifies a message within a messenger platform.
type MessageID string

// Platform names.
const (
	PlatformWebhook  = "webhook"
	PlatformSlack    = "slack"
	PlatformTelegram = "telegram"
)

// Messenger abstracts delivery to a chat platform (Slack, Telegram, a generic
// webhook). Implementations handle platform-specific API calls.
type Messenger interface {
	// SendMessage posts text to a platform address and returns its message ID.
	SendMessage(ctx context.Context, to, text string) (MessageID, error)

	// SendDocument delivers a document with an optional caption.
	SendDocument(ctx context.Context, to string, doc domain.Attachment, caption string) (MessageID, error)

	// Platform returns the messenger platform identifier (e.g. "slack", "telegram").
	Platform() string
}
