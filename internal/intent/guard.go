package intent

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/taskbot/internal/domain"
	"github.com/gosuda/taskbot/internal/llm"
)

// Decision is the continuity guard's verdict on a new message.
type Decision int

const (
	// Reset starts a fresh classification pass.
	Reset Decision = iota
	// Continue keeps the in-flight request.
	Continue
	// AskClarification holds the conversation until the user chooses.
	AskClarification
)

func (d Decision) String() string {
	switch d {
	case Reset:
		return "reset"
	case Continue:
		return "continue"
	case AskClarification:
		return "ask_clarification"
	default:
		return fmt.Sprintf("decision(%d)", int(d))
	}
}

// Verdict is the result of Guard.Check. Intent and Request describe the
// in-flight request when one is active.
type Verdict struct {
	Decision Decision
	Question string
	Intent   Intent
	Request  string
}

// DefaultDriftThreshold is the confidence at or above which a "different
// request" judgement interrupts the conversation.
const DefaultDriftThreshold = 0.5

// HistoryAppender records the clarification question in the session.
type HistoryAppender interface {
	AppendMessage(ctx context.Context, sessionID string, role domain.Role, content string) error
}

// Guard decides whether a new message continues the in-flight request.
type Guard struct {
	llm       llm.Completer
	history   HistoryAppender
	threshold float64
}

func NewGuard(c llm.Completer, history HistoryAppender) *Guard {
	return &Guard{llm: c, history: history, threshold: DefaultDriftThreshold}
}

type continuityResponse struct {
	SameRequest *bool   `json:"same_request"`
	Confidence  float64 `json:"confidence"`
}

// Check returns Reset when nothing is in flight or when the previous assistant
// turn was a clarification question. Otherwise the model judges continuity;
// any doubt or failure continues. The only error is failing to record the
// clarification question.
func (g *Guard) Check(ctx context.Context, sessionID string, history []domain.Message, text string) (Verdict, error) {
	active, request, ok := Active(history)
	if !ok {
		return Verdict{Decision: Reset}, nil
	}
	verdict := Verdict{Decision: Continue, Intent: active, Request: request}

	if last, ok := lastAssistant(history); ok && strings.HasPrefix(last.Content, ClarifyPrefix) {
		verdict.Decision = Reset
		return verdict, nil
	}

	logger := log.With().Str("session_id", sessionID).Str("intent", string(active)).Logger()

	system, prompt := continuityPrompt(active, request, Transcript(history), text)
	raw, err := g.llm.Complete(ctx, llm.Request{System: system, Prompt: prompt, JSON: true})
	if err != nil {
		logger.Warn().Err(err).Msg("continuity check failed; continuing")
		return verdict, nil
	}

	var resp continuityResponse
	if err := llm.DecodeJSON(raw, &resp); err != nil || resp.SameRequest == nil {
		logger.Warn().Err(err).Msg("continuity check unreadable; continuing")
		return verdict, nil
	}
	if *resp.SameRequest || resp.Confidence < g.threshold {
		return verdict, nil
	}

	question := g.question(ctx, active, request, text)
	if err := g.history.AppendMessage(ctx, sessionID, domain.RoleAssistant, ClarifyPrefix+question); err != nil {
		return Verdict{}, fmt.Errorf("intent.Guard.Check: record clarification: %w", err)
	}

	verdict.Decision = AskClarification
	verdict.Question = question
	return verdict, nil
}

func (g *Guard) question(ctx context.Context, active Intent, request, text string) string {
	system, prompt := questionPrompt(active, request, text)
	raw, err := g.llm.Complete(ctx, llm.Request{System: system, Prompt: prompt})
	if err != nil {
		log.Warn().Err(err).Msg("clarification question generation failed")
		return fallbackQuestion(active)
	}

	q := strings.Trim(strings.TrimSpace(raw), "\"")
	lower := strings.ToLower(q)
	if q == "" || len(q) > 300 || strings.Contains(lower, "intent") || strings.HasPrefix(q, "{") {
		return fallbackQuestion(active)
	}
	return q
}
