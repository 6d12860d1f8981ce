package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/taskbot/internal/domain"
	"github.com/gosuda/taskbot/internal/messenger"
)

// Messenger posts outbound messages to the relay's callback URL. With no URL
// configured, messages are logged and dropped.
type Messenger struct {
	client      *http.Client
	callbackURL string
	token       string
}

var _ messenger.Messenger = (*Messenger)(nil)

func NewMessenger(callbackURL, token string, timeout time.Duration) *Messenger {
	return &Messenger{
		client:      &http.Client{Timeout: timeout},
		callbackURL: callbackURL,
		token:       token,
	}
}

type outbound struct {
	To       string             `json:"to"`
	Text     string             `json:"text,omitempty"`
	Document *domain.Attachment `json:"document,omitempty"`
}

func (m *Messenger) SendMessage(ctx context.Context, to, text string) (messenger.MessageID, error) {
	id, err := m.post(ctx, outbound{To: to, Text: text})
	if err != nil {
		return "", fmt.Errorf("webhook.Messenger.SendMessage: %w", err)
	}
	return id, nil
}

func (m *Messenger) SendDocument(ctx context.Context, to string, doc domain.Attachment, caption string) (messenger.MessageID, error) {
	id, err := m.post(ctx, outbound{To: to, Text: caption, Document: &doc})
	if err != nil {
		return "", fmt.Errorf("webhook.Messenger.SendDocument: %w", err)
	}
	return id, nil
}

func (m *Messenger) Platform() string {
	return messenger.PlatformWebhook
}

func (m *Messenger) post(ctx context.Context, body outbound) (messenger.MessageID, error) {
	if m.callbackURL == "" {
		log.Info().Str("to", body.To).Str("text", body.Text).Msg("webhook: no callback configured, message dropped")
		return messenger.MessageID(uuid.NewString()), nil
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.callbackURL, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if m.token != "" {
		req.Header.Set("Authorization", "Bearer "+m.token)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("callback returned %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}

	var ack struct {
		MessageID string `json:"message_id"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&ack); err != nil || ack.MessageID == "" {
		return messenger.MessageID(uuid.NewString()), nil
	}
	return messenger.MessageID(ack.MessageID), nil
}
