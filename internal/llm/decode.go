package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DecodeJSON decodes model output into v. Markdown code fences and prose
// surrounding the outermost JSON object are tolerated. Any failure is reported
// as ErrMalformed.
func DecodeJSON(raw string, v any) error {
	s := stripCodeFences(raw)
	if s == "" {
		return fmt.Errorf("llm.DecodeJSON: %w: empty", ErrMalformed)
	}

	if err := json.Unmarshal([]byte(s), v); err == nil {
		return nil
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end <= start {
		return fmt.Errorf("llm.DecodeJSON: %w: no object", ErrMalformed)
	}
	if err := json.Unmarshal([]byte(s[start:end+1]), v); err != nil {
		return fmt.Errorf("llm.DecodeJSON: %w: %v", ErrMalformed, err)
	}
	return nil
}

// stripCodeFences removes a surrounding ```json ... ``` block.
func stripCodeFences(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	firstNewline := strings.Index(trimmed, "\n")
	if firstNewline == -1 {
		return trimmed
	}
	lastFence := strings.LastIndex(trimmed, "```")
	if lastFence <= firstNewline {
		return strings.TrimSpace(trimmed[firstNewline+1:])
	}
	return strings.TrimSpace(trimmed[firstNewline+1 : lastFence])
}
