package notify_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/taskbot/internal/domain"
	"github.com/gosuda/taskbot/internal/messenger"
	"github.com/gosuda/taskbot/internal/notify"
)

// --- mocks ---

type mockMessenger struct {
	platform string
	sendErr  error

	mu        sync.Mutex
	messages  []sentMessage
	documents []sentMessage
}

type sentMessage struct {
	to   string
	text string
	doc  *domain.Attachment
}

func (m *mockMessenger) SendMessage(_ context.Context, to, text string) (messenger.MessageID, error) {
	if m.sendErr != nil {
		return "", m.sendErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, sentMessage{to: to, text: text})
	return "m1", nil
}

func (m *mockMessenger) SendDocument(_ context.Context, to string, doc domain.Attachment, caption string) (messenger.MessageID, error) {
	if m.sendErr != nil {
		return "", m.sendErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.documents = append(m.documents, sentMessage{to: to, text: caption, doc: &doc})
	return "d1", nil
}

func (m *mockMessenger) Platform() string { return m.platform }

func (m *mockMessenger) sent() []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentMessage(nil), m.messages...)
}

type mockRegistry struct {
	messengers map[string]messenger.Messenger
}

func (r *mockRegistry) Get(platform string) (messenger.Messenger, bool) {
	m, ok := r.messengers[platform]
	return m, ok
}

type mockLinks struct {
	links []*domain.MessengerLink
	err   error
}

func (m *mockLinks) ListMessengerLinks(context.Context, string) ([]*domain.MessengerLink, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.links, nil
}

// --- Notify tests ---

func TestNotify(t *testing.T) {
	t.Parallel()

	ev := notify.Event{Phone: "+919800000002", Text: "New task: Q3 report"}

	t.Run("happy path sends via first available link", func(t *testing.T) {
		t.Parallel()
		ctx := t.Context()

		slackMsg := &mockMessenger{platform: "slack"}
		reg := &mockRegistry{messengers: map[string]messenger.Messenger{"slack": slackMsg}}
		links := &mockLinks{
			links: []*domain.MessengerLink{
				{Platform: "slack", ExternalID: "U123", Phone: ev.Phone},
			},
		}

		n := notify.New(reg, links, "")
		err := n.Notify(ctx, ev)

		require.NoError(t, err)
		require.Len(t, slackMsg.sent(), 1)
		assert.Equal(t, "U123", slackMsg.sent()[0].to)
		assert.Equal(t, "New task: Q3 report", slackMsg.sent()[0].text)
	})

	t.Run("no links uses fallback platform addressed by phone", func(t *testing.T) {
		t.Parallel()
		ctx := t.Context()

		hook := &mockMessenger{platform: "webhook"}
		reg := &mockRegistry{messengers: map[string]messenger.Messenger{"webhook": hook}}

		n := notify.New(reg, &mockLinks{}, "webhook")
		require.NoError(t, n.Notify(ctx, ev))

		require.Len(t, hook.sent(), 1)
		assert.Equal(t, ev.Phone, hook.sent()[0].to)
	})

	t.Run("no links and no fallback logs without error", func(t *testing.T) {
		t.Parallel()
		ctx := t.Context()

		reg := &mockRegistry{messengers: map[string]messenger.Messenger{}}

		n := notify.New(reg, &mockLinks{}, "webhook")
		require.NoError(t, n.Notify(ctx, ev))
	})

	t.Run("ListMessengerLinks error propagates", func(t *testing.T) {
		t.Parallel()
		ctx := t.Context()

		reg := &mockRegistry{messengers: map[string]messenger.Messenger{}}
		links := &mockLinks{err: errors.New("db error")}

		n := notify.New(reg, links, "")
		err := n.Notify(ctx, ev)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "list links")
	})

	t.Run("send failure returns error", func(t *testing.T) {
		t.Parallel()
		ctx := t.Context()

		slackMsg := &mockMessenger{platform: "slack", sendErr: errors.New("api down")}
		reg := &mockRegistry{messengers: map[string]messenger.Messenger{"slack": slackMsg}}
		links := &mockLinks{
			links: []*domain.MessengerLink{{Platform: "slack", ExternalID: "U123"}},
		}

		n := notify.New(reg, links, "")
		err := n.Notify(ctx, ev)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "all links failed")
	})

	t.Run("falls through to second link on first failure", func(t *testing.T) {
		t.Parallel()
		ctx := t.Context()

		slackMsg := &mockMessenger{platform: "slack", sendErr: errors.New("slack down")}
		tgMsg := &mockMessenger{platform: "telegram"}
		reg := &mockRegistry{messengers: map[string]messenger.Messenger{
			"slack":    slackMsg,
			"telegram": tgMsg,
		}}
		links := &mockLinks{
			links: []*domain.MessengerLink{
				{Platform: "slack", ExternalID: "U123"},
				{Platform: "telegram", ExternalID: "555"},
			},
		}

		n := notify.New(reg, links, "")
		err := n.Notify(ctx, ev)

		require.NoError(t, err)
		assert.Empty(t, slackMsg.sent())
		require.Len(t, tgMsg.sent(), 1)
		assert.Equal(t, "555", tgMsg.sent()[0].to)
	})
}

// --- NotifyVia tests ---

func TestNotifyVia(t *testing.T) {
	t.Parallel()

	t.Run("document forwarded with caption", func(t *testing.T) {
		t.Parallel()
		ctx := t.Context()

		tgMsg := &mockMessenger{platform: "telegram"}
		reg := &mockRegistry{messengers: map[string]messenger.Messenger{"telegram": tgMsg}}

		n := notify.New(reg, &mockLinks{}, "")
		doc := &domain.Attachment{ID: "file-1", Filename: "brief.pdf", MimeType: "application/pdf"}
		err := n.NotifyVia(ctx, "telegram", "555", notify.Event{Text: "See attached", Document: doc})

		require.NoError(t, err)
		require.Len(t, tgMsg.documents, 1)
		assert.Equal(t, "555", tgMsg.documents[0].to)
		assert.Equal(t, "See attached", tgMsg.documents[0].text)
		assert.Equal(t, "brief.pdf", tgMsg.documents[0].doc.Filename)
		assert.Empty(t, tgMsg.sent())
	})

	t.Run("unknown platform returns ErrPlatformNotFound", func(t *testing.T) {
		t.Parallel()
		ctx := t.Context()

		reg := &mockRegistry{messengers: map[string]messenger.Messenger{}}

		n := notify.New(reg, &mockLinks{}, "")
		err := n.NotifyVia(ctx, "unknown", "U123", notify.Event{Text: "hello"})

		require.Error(t, err)
		assert.ErrorIs(t, err, notify.ErrPlatformNotFound)
	})

	t.Run("send error wraps", func(t *testing.T) {
		t.Parallel()
		ctx := t.Context()

		slackMsg := &mockMessenger{platform: "slack", sendErr: errors.New("timeout")}
		reg := &mockRegistry{messengers: map[string]messenger.Messenger{"slack": slackMsg}}

		n := notify.New(reg, &mockLinks{}, "")
		err := n.NotifyVia(ctx, "slack", "U123", notify.Event{Text: "hello"})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "send")
	})
}
