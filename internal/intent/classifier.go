package intent

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/taskbot/internal/llm"
)

// Classification is the outcome of classifying one message. Unsupported
// results carry confidence 0.
type Classification struct {
	Supported  bool
	Intent     Intent
	Confidence float64
	Rationale  string
}

func unsupported(rationale string) Classification {
	return Classification{Rationale: rationale}
}

type classifyResponse struct {
	Supported      bool    `json:"supported"`
	Intent         string  `json:"intent"`
	Confidence     float64 `json:"confidence"`
	MentionsPerson bool    `json:"mentions_person"`
	Rationale      string  `json:"rationale"`
}

// Classifier maps message text onto the supported intent set.
type Classifier struct {
	llm llm.Completer
}

func NewClassifier(c llm.Completer) *Classifier {
	return &Classifier{llm: c}
}

// Classify never fails: model errors and malformed answers yield an
// unsupported classification.
func (c *Classifier) Classify(ctx context.Context, text string, hasAttachment bool) Classification {
	system, prompt := classifyPrompt(text, hasAttachment)
	raw, err := c.llm.Complete(ctx, llm.Request{System: system, Prompt: prompt, JSON: true})
	if err != nil {
		log.Warn().Err(err).Msg("intent classification failed")
		return unsupported("classification unavailable")
	}

	var resp classifyResponse
	if err := llm.DecodeJSON(raw, &resp); err != nil {
		log.Warn().Err(err).Msg("intent classification returned malformed output")
		return unsupported("classification unreadable")
	}

	if !resp.Supported {
		return unsupported(resp.Rationale)
	}
	in, ok := Parse(resp.Intent)
	if !ok {
		log.Warn().Str("intent", resp.Intent).Msg("intent classification outside supported set")
		return unsupported("unknown request type")
	}

	cls := Classification{
		Supported:  true,
		Intent:     in,
		Confidence: clamp01(resp.Confidence),
		Rationale:  resp.Rationale,
	}
	return applyPolicy(cls, text, hasAttachment, resp.MentionsPerson)
}

// applyPolicy settles pending-task queries and restricts what a message with
// a document may ask for. Pending-task rules apply in order: "team", then
// "my", then a named person, so "my team's tasks" means team performance.
func applyPolicy(cls Classification, text string, hasAttachment, mentionsPerson bool) Classification {
	if cls.Intent.pendingTasks() {
		switch {
		case containsWord(text, "team"):
			cls.Intent = ViewPerformance
		case containsWord(text, "my"):
			cls.Intent = ViewOwnTasks
		case mentionsPerson:
			cls.Intent = ViewPerformance
		default:
			cls.Intent = PendingTasksAmbiguous
		}
	}

	if hasAttachment && cls.Intent != AssignTask && cls.Intent != UpdateTaskStatus {
		return unsupported("documents can only accompany task assignments or status updates")
	}
	return cls
}

func clamp01(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}
