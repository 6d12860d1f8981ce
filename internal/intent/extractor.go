package intent

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/gosuda/taskbot/internal/llm"
)

// Extractor pulls the parameters of a request out of the conversation.
type Extractor struct {
	llm llm.Completer
}

func NewExtractor(c llm.Completer) *Extractor {
	return &Extractor{llm: c}
}

// Extract asks the model for the fields of in and merges them over known.
// Values the model leaves blank never erase known ones.
func (e *Extractor) Extract(ctx context.Context, in Intent, transcript string, known Params) (Params, error) {
	required, optional := in.Fields()
	if len(required) == 0 && len(optional) == 0 {
		return known.Clone(), nil
	}

	system, prompt := extractPrompt(in, transcript, known)
	raw, err := e.llm.Complete(ctx, llm.Request{System: system, Prompt: prompt, JSON: true})
	if err != nil {
		return nil, fmt.Errorf("intent.Extractor.Extract: %w", err)
	}

	var fields map[string]any
	if err := llm.DecodeJSON(raw, &fields); err != nil {
		return nil, fmt.Errorf("intent.Extractor.Extract: %w", err)
	}

	allowed := make(map[string]bool, len(required)+len(optional))
	for _, f := range slices.Concat(required, optional) {
		allowed[f] = true
	}

	found := make(Params, len(fields))
	for k, v := range fields {
		if !allowed[k] || v == nil {
			continue
		}
		s := stringify(v)
		if s == "" {
			continue
		}
		found[k] = s
	}
	return known.Merge(found), nil
}

func stringify(v any) string {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return strings.TrimSpace(fmt.Sprint(x))
	}
}
