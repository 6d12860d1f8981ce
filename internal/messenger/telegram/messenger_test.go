package telegram

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/taskbot/internal/conversation"
	"github.com/gosuda/taskbot/internal/domain"
	"github.com/gosuda/taskbot/internal/messenger"
)

// --- mock Bot ---

type mockBot struct {
	mu      sync.Mutex
	sent    []tgbotapi.Chattable
	sendErr error
	nextID  int

	updates chan tgbotapi.Update
	stopped bool
}

func newMockBot() *mockBot {
	return &mockBot{updates: make(chan tgbotapi.Update, 8)}
}

func (m *mockBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return tgbotapi.Message{}, m.sendErr
	}
	m.sent = append(m.sent, c)
	m.nextID++
	return tgbotapi.Message{MessageID: m.nextID}, nil
}

func (m *mockBot) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return m.updates
}

func (m *mockBot) StopReceivingUpdates() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
}

func (m *mockBot) messages() []tgbotapi.MessageConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []tgbotapi.MessageConfig
	for _, c := range m.sent {
		if msg, ok := c.(tgbotapi.MessageConfig); ok {
			out = append(out, msg)
		}
	}
	return out
}

// --- TelegramMessenger ---

func TestTelegramMessenger_SendMessage(t *testing.T) {
	t.Parallel()

	bot := newMockBot()
	m := NewTelegramMessenger(bot)

	id, err := m.SendMessage(context.Background(), "4242", "You have a new task")
	require.NoError(t, err)
	assert.Equal(t, messenger.MessageID("1"), id)

	msgs := bot.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, int64(4242), msgs[0].ChatID)
	assert.Equal(t, "You have a new task", msgs[0].Text)
	assert.Equal(t, messenger.PlatformTelegram, m.Platform())
}

func TestTelegramMessenger_SendMessageErrors(t *testing.T) {
	t.Parallel()

	m := NewTelegramMessenger(newMockBot())
	_, err := m.SendMessage(context.Background(), "not-a-chat", "hi")
	require.Error(t, err)

	bot := newMockBot()
	bot.sendErr = errors.New("Forbidden: bot was blocked by the user")
	_, err = NewTelegramMessenger(bot).SendMessage(context.Background(), "1", "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "blocked")
}

func TestTelegramMessenger_SplitsLongMessages(t *testing.T) {
	t.Parallel()

	bot := newMockBot()
	m := NewTelegramMessenger(bot)

	long := strings.Repeat("a", maxMessageLen) + strings.Repeat("b", 10)
	id, err := m.SendMessage(context.Background(), "1", long)
	require.NoError(t, err)

	msgs := bot.messages()
	require.Len(t, msgs, 2)
	assert.Len(t, msgs[0].Text, maxMessageLen)
	assert.Equal(t, strings.Repeat("b", 10), msgs[1].Text)
	assert.Equal(t, messenger.MessageID("2"), id)
}

func TestTelegramMessenger_SendDocument(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		doc      domain.Attachment
		wantFile tgbotapi.RequestFileData
	}{
		{name: "telegram file", doc: domain.Attachment{ID: "BQACAgUAAx"}, wantFile: tgbotapi.FileID("BQACAgUAAx")},
		{name: "foreign file", doc: domain.Attachment{ID: "F1", URL: "https://files.example.com/F1"}, wantFile: tgbotapi.FileURL("https://files.example.com/F1")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			bot := newMockBot()
			m := NewTelegramMessenger(bot)

			_, err := m.SendDocument(context.Background(), "7", tt.doc, "Brief")
			require.NoError(t, err)

			require.Len(t, bot.sent, 1)
			cfg, ok := bot.sent[0].(tgbotapi.DocumentConfig)
			require.True(t, ok)
			assert.Equal(t, int64(7), cfg.ChatID)
			assert.Equal(t, "Brief", cfg.Caption)
			assert.Equal(t, tt.wantFile, cfg.File)
		})
	}
}

func TestTelegramMessenger_ReplyWithLongCaption(t *testing.T) {
	t.Parallel()

	bot := newMockBot()
	m := NewTelegramMessenger(bot)

	caption := strings.Repeat("x", maxCaptionLen+1)
	err := m.Reply(context.Background(), 7, conversation.Reply{Text: caption, Document: &domain.Attachment{ID: "doc"}})
	require.NoError(t, err)

	require.Len(t, bot.sent, 2)
	cfg, ok := bot.sent[0].(tgbotapi.DocumentConfig)
	require.True(t, ok)
	assert.Empty(t, cfg.Caption)
	assert.Equal(t, caption, bot.messages()[0].Text)
}

func TestSplitMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		text  string
		limit int
		want  []string
	}{
		{name: "short", text: "hello", limit: 10, want: []string{"hello"}},
		{name: "hard cut", text: "abcdefghij", limit: 4, want: []string{"abcd", "efgh", "ij"}},
		{name: "prefers newline", text: "1. one\n2. two\n3. three", limit: 16, want: []string{"1. one\n2. two", "3. three"}},
		{name: "multibyte", text: "नमस्ते", limit: 3, want: []string{"नमस", "्ते"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, splitMessage(tt.text, tt.limit))
		})
	}
}
