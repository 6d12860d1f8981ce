package intent_test

import (
	"context"
	"sync"

	"github.com/gosuda/taskbot/internal/domain"
	"github.com/gosuda/taskbot/internal/llm"
)

// scriptedLLM answers each call with the next scripted reply.
type scriptedLLM struct {
	mu      sync.Mutex
	replies []reply
	calls   []llm.Request
}

type reply struct {
	text string
	err  error
}

func (s *scriptedLLM) Complete(_ context.Context, req llm.Request) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, req)
	if len(s.replies) == 0 {
		return "", context.DeadlineExceeded
	}
	r := s.replies[0]
	s.replies = s.replies[1:]
	return r.text, r.err
}

func script(texts ...string) *scriptedLLM {
	s := &scriptedLLM{}
	for _, t := range texts {
		s.replies = append(s.replies, reply{text: t})
	}
	return s
}

type recordedMessage struct {
	sessionID string
	role      domain.Role
	content   string
}

type mockHistory struct {
	appendFn func(ctx context.Context, sessionID string, role domain.Role, content string) error
	appended []recordedMessage
}

func (m *mockHistory) AppendMessage(ctx context.Context, sessionID string, role domain.Role, content string) error {
	m.appended = append(m.appended, recordedMessage{sessionID, role, content})
	if m.appendFn != nil {
		return m.appendFn(ctx, sessionID, role, content)
	}
	return nil
}
