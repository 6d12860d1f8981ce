// Package llm wraps the language model used for intent classification,
// parameter extraction and the continuity guard.
package llm

import (
	"context"
	"errors"
)

var (
	// ErrEmptyResponse is returned when the model produced no text.
	ErrEmptyResponse = errors.New("llm: empty response")
	// ErrMalformed is returned when model output cannot be decoded.
	ErrMalformed = errors.New("llm: malformed output")
)

// Request is one single-turn completion.
type Request struct {
	System string
	Prompt string
	// JSON asks the model to answer with a JSON document only.
	JSON bool
}

// Completer produces a completion for a prompt. Implementations must be safe
// for concurrent use.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, req Request) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}
