package slack

import (
	"context"
	"fmt"

	slacklib "github.com/slack-go/slack"

	"github.com/gosuda/taskbot/internal/conversation"
	"github.com/gosuda/taskbot/internal/domain"
	"github.com/gosuda/taskbot/internal/messenger"
)

// SlackAPI abstracts the subset of the Slack client used by SlackMessenger.
// This allows testing without real HTTP calls.
type SlackAPI interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slacklib.MsgOption) (string, string, error)
}

// SlackMessenger implements messenger.Messenger for Slack. Addresses are
// channel ids or user ids; posting to a user id lands in the bot's DM.
type SlackMessenger struct {
	api SlackAPI
}

// Compile-time interface check.
var _ messenger.Messenger = (*SlackMessenger)(nil) //nolint:gochecknoglobals // compile-time check

func NewSlackMessenger(api SlackAPI) *SlackMessenger {
	return &SlackMessenger{api: api}
}

// SendMessage posts a text message and returns the message timestamp as MessageID.
func (m *SlackMessenger) SendMessage(ctx context.Context, channelID, text string) (messenger.MessageID, error) {
	_, ts, err := m.api.PostMessageContext(ctx, channelID, slacklib.MsgOptionText(text, false))
	if err != nil {
		return "", fmt.Errorf("slack.SlackMessenger.SendMessage: %w", err)
	}

	return messenger.MessageID(ts), nil
}

// SendDocument posts the caption with a reference to the document.
func (m *SlackMessenger) SendDocument(ctx context.Context, channelID string, doc domain.Attachment, caption string) (messenger.MessageID, error) {
	_, ts, err := m.api.PostMessageContext(ctx, channelID,
		slacklib.MsgOptionText(fallbackText(caption, doc), false),
		slacklib.MsgOptionBlocks(BuildDocumentBlocks(caption, doc)...),
	)
	if err != nil {
		return "", fmt.Errorf("slack.SlackMessenger.SendDocument: %w", err)
	}

	return messenger.MessageID(ts), nil
}

// Reply answers an inbound message, threaded under threadTS when set.
func (m *SlackMessenger) Reply(ctx context.Context, channelID, threadTS string, reply conversation.Reply) error {
	opts := []slacklib.MsgOption{slacklib.MsgOptionText(reply.Text, false)}
	if reply.Document != nil {
		opts = []slacklib.MsgOption{
			slacklib.MsgOptionText(fallbackText(reply.Text, *reply.Document), false),
			slacklib.MsgOptionBlocks(BuildDocumentBlocks(reply.Text, *reply.Document)...),
		}
	}
	if threadTS != "" {
		opts = append(opts, slacklib.MsgOptionTS(threadTS))
	}

	if _, _, err := m.api.PostMessageContext(ctx, channelID, opts...); err != nil {
		return fmt.Errorf("slack.SlackMessenger.Reply: %w", err)
	}
	return nil
}

// Platform returns the messenger platform identifier.
func (m *SlackMessenger) Platform() string {
	return messenger.PlatformSlack
}

// fallbackText is shown in notifications where blocks are not rendered.
func fallbackText(caption string, doc domain.Attachment) string {
	name := doc.Filename
	if name == "" {
		name = doc.ID
	}
	if caption == "" {
		return name
	}
	return caption + " (" + name + ")"
}
