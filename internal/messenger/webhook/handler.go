// Package webhook is the generic JSON transport: inbound messages are POSTed
// by a relay and answered in the response body; outbound notifications are
// POSTed to a configured callback URL.
package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/taskbot/internal/conversation"
	"github.com/gosuda/taskbot/internal/domain"
)

const maxBodyBytes = 1 << 20

// Processor handles one inbound message synchronously.
type Processor interface {
	Process(ctx context.Context, in conversation.Inbound) (conversation.Reply, error)
}

// Handler serves POST /webhook/messages.
type Handler struct {
	processor Processor
}

func NewHandler(p Processor) *Handler {
	return &Handler{processor: p}
}

// InboundMessage is the relay's delivery. From is the sender's phone number or
// email as recorded in the directory.
type InboundMessage struct {
	MessageID  string             `json:"message_id"`
	From       string             `json:"from"`
	Text       string             `json:"text"`
	Attachment *domain.Attachment `json:"attachment,omitempty"`
}

// OutboundReply is the response body.
type OutboundReply struct {
	Reply     string             `json:"reply,omitempty"`
	Document  *domain.Attachment `json:"document,omitempty"`
	Duplicate bool               `json:"duplicate,omitempty"`
}

func (h *Handler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var msg InboundMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	msg.From = strings.TrimSpace(msg.From)
	if msg.From == "" {
		writeError(w, http.StatusBadRequest, "from is required")
		return
	}
	if msg.Attachment != nil && msg.Attachment.ID == "" {
		writeError(w, http.StatusBadRequest, "attachment.id is required")
		return
	}

	reply, err := h.processor.Process(r.Context(), conversation.Inbound{
		UserKey:    msg.From,
		Text:       msg.Text,
		Attachment: msg.Attachment,
		MessageID:  msg.MessageID,
	})
	if err != nil {
		log.Error().Err(err).Str("message_id", msg.MessageID).Msg("webhook: processing failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, OutboundReply{
		Reply:     reply.Text,
		Document:  reply.Document,
		Duplicate: reply.Duplicate,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("webhook: encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
