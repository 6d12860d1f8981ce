package slack

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"
	slacklib "github.com/slack-go/slack"

	"github.com/gosuda/taskbot/internal/conversation"
	"github.com/gosuda/taskbot/internal/dispatch"
	"github.com/gosuda/taskbot/internal/domain"
	"github.com/gosuda/taskbot/internal/messenger"
)

const maxBodyBytes = 1 << 20

// Submitter queues an inbound message for asynchronous processing.
type Submitter interface {
	Submit(ctx context.Context, in conversation.Inbound, respond dispatch.RespondFunc)
}

// IdentityLinker maps Slack accounts onto directory entries.
type IdentityLinker interface {
	Resolve(ctx context.Context, platform, externalID string) (string, error)
	Link(ctx context.Context, platform, externalID, key string) (*domain.Employee, error)
}

// UserLookup fetches Slack profiles; used to link an account by its email.
type UserLookup interface {
	GetUserInfoContext(ctx context.Context, user string) (*slacklib.User, error)
}

// Replier posts a conversation reply back into the originating channel.
type Replier interface {
	Reply(ctx context.Context, channelID, threadTS string, reply conversation.Reply) error
}

// Handler processes Slack Events API webhooks. It acknowledges immediately
// and hands the message to the dispatcher, since Slack retries any event not
// acknowledged within three seconds.
type Handler struct {
	signingSecret string
	dispatcher    Submitter
	linker        IdentityLinker
	users         UserLookup
	replier       Replier
}

func NewHandler(signingSecret string, dispatcher Submitter, linker IdentityLinker, users UserLookup, replier Replier) *Handler {
	return &Handler{
		signingSecret: signingSecret,
		dispatcher:    dispatcher,
		linker:        linker,
		users:         users,
		replier:       replier,
	}
}

// slackEvent represents the outer envelope of Slack Events API payloads.
type slackEvent struct {
	Type      string          `json:"type"`
	Challenge string          `json:"challenge,omitempty"`
	EventID   string          `json:"event_id,omitempty"`
	Event     json.RawMessage `json:"event,omitempty"`
}

// innerEvent represents the inner event within an event_callback.
type innerEvent struct {
	Type        string      `json:"type"`
	Subtype     string      `json:"subtype,omitempty"`
	Channel     string      `json:"channel"`
	ChannelType string      `json:"channel_type,omitempty"`
	TS          string      `json:"ts"`
	ThreadTS    string      `json:"thread_ts,omitempty"`
	Text        string      `json:"text"`
	User        string      `json:"user"`
	BotID       string      `json:"bot_id,omitempty"`
	ClientMsgID string      `json:"client_msg_id,omitempty"`
	Files       []eventFile `json:"files,omitempty"`
}

type eventFile struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Mimetype   string `json:"mimetype"`
	URLPrivate string `json:"url_private"`
}

// HandleEvents is an http.HandlerFunc for POST /slack/events.
func (h *Handler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	if verifyErr := h.verifySignature(r.Header, body); verifyErr != nil {
		log.Warn().Err(verifyErr).Msg("slack: rejected request")
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	var envelope slackEvent
	if unmarshalErr := json.Unmarshal(body, &envelope); unmarshalErr != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	switch envelope.Type {
	case "url_verification":
		h.handleURLVerification(w, envelope.Challenge)
	case "event_callback":
		h.handleEventCallback(r.Context(), w, envelope)
	default:
		w.WriteHeader(http.StatusOK)
	}
}

// handleURLVerification responds to Slack's URL verification challenge.
func (h *Handler) handleURLVerification(w http.ResponseWriter, challenge string) {
	w.Header().Set("Content-Type", "application/json")

	resp := map[string]string{"challenge": challenge}
	if encodeErr := json.NewEncoder(w).Encode(resp); encodeErr != nil {
		log.Error().Err(encodeErr).Msg("slack: encode url verification response")
	}
}

func (h *Handler) handleEventCallback(ctx context.Context, w http.ResponseWriter, envelope slackEvent) {
	var evt innerEvent
	if unmarshalErr := json.Unmarshal(envelope.Event, &evt); unmarshalErr != nil {
		http.Error(w, "invalid event JSON", http.StatusBadRequest)
		return
	}

	// Acknowledge whatever happens next; failures are handled out of band.
	w.WriteHeader(http.StatusOK)

	if !accepts(evt) {
		return
	}

	in := conversation.Inbound{
		UserKey:   h.resolveUser(ctx, evt.User),
		Text:      StripMention(evt.Text),
		MessageID: messageID(envelope.EventID, evt),
	}
	if len(evt.Files) > 0 {
		f := evt.Files[0]
		in.Attachment = &domain.Attachment{ID: f.ID, MimeType: f.Mimetype, Filename: f.Name, URL: f.URLPrivate}
	}

	// Replies to channel mentions stay in a thread; DMs are answered inline.
	threadTS := ""
	if evt.Type == "app_mention" {
		threadTS = evt.ThreadTS
		if threadTS == "" {
			threadTS = evt.TS
		}
	}
	channel := evt.Channel

	h.dispatcher.Submit(ctx, in, func(ctx context.Context, reply conversation.Reply) {
		if err := h.replier.Reply(ctx, channel, threadTS, reply); err != nil {
			log.Error().Err(err).Str("channel", channel).Msg("slack: reply failed")
		}
	})
}

// accepts reports whether the event is a human message addressed to the bot.
func accepts(evt innerEvent) bool {
	if evt.BotID != "" || evt.User == "" {
		return false
	}
	switch evt.Subtype {
	case "", "file_share":
	default:
		return false
	}
	switch evt.Type {
	case "app_mention":
		return true
	case "message":
		return evt.ChannelType == "im"
	default:
		return false
	}
}

func messageID(eventID string, evt innerEvent) string {
	switch {
	case evt.ClientMsgID != "":
		return "slack:" + evt.ClientMsgID
	case evt.TS != "":
		return "slack:" + evt.Channel + ":" + evt.TS
	default:
		return eventID
	}
}

// resolveUser returns the directory key for a Slack user. Unlinked accounts
// are linked on first contact through their profile email; when that fails the
// raw Slack id is returned and the conversation layer reports the sender as
// unregistered.
func (h *Handler) resolveUser(ctx context.Context, slackUserID string) string {
	phone, err := h.linker.Resolve(ctx, messenger.PlatformSlack, slackUserID)
	if err == nil {
		return phone
	}
	if !errors.Is(err, domain.ErrNotFound) {
		log.Error().Err(err).Str("slack_user", slackUserID).Msg("slack: resolve link")
		return slackKey(slackUserID)
	}

	user, err := h.users.GetUserInfoContext(ctx, slackUserID)
	if err != nil {
		log.Warn().Err(err).Str("slack_user", slackUserID).Msg("slack: fetch profile")
		return slackKey(slackUserID)
	}
	if user.Profile.Email == "" {
		return slackKey(slackUserID)
	}

	emp, err := h.linker.Link(ctx, messenger.PlatformSlack, slackUserID, user.Profile.Email)
	if err != nil {
		log.Info().Err(err).Str("slack_user", slackUserID).Msg("slack: profile email not in directory")
		return slackKey(slackUserID)
	}
	return emp.Phone
}

func slackKey(id string) string {
	return messenger.PlatformSlack + ":" + id
}

// verifySignature validates the Slack request signature using the signing secret.
func (h *Handler) verifySignature(header http.Header, body []byte) error {
	sv, err := slacklib.NewSecretsVerifier(header, h.signingSecret)
	if err != nil {
		return fmt.Errorf("slack.Handler.verifySignature: create verifier: %w", err)
	}

	if _, writeErr := sv.Write(body); writeErr != nil {
		return fmt.Errorf("slack.Handler.verifySignature: write body: %w", writeErr)
	}

	if ensureErr := sv.Ensure(); ensureErr != nil {
		return fmt.Errorf("slack.Handler.verifySignature: ensure: %w", ensureErr)
	}

	return nil
}
