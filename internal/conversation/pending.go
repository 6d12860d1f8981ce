package conversation

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/gosuda/taskbot/internal/domain"
	"github.com/gosuda/taskbot/internal/intent"
)

// PendingKind tags a pending action variant.
type PendingKind string

const (
	KindConfirmUpdate PendingKind = "confirm_update"
	KindDisambiguate  PendingKind = "disambiguate"
	KindDocument      PendingKind = "document"
	KindTaskScope     PendingKind = "task_scope"
)

// ErrUnknownPending is returned when a stored pending record has an
// unrecognised kind or is missing its payload.
var ErrUnknownPending = errors.New("conversation: unknown pending action")

// Staged is a request waiting on the user's next reply.
type Staged struct {
	Intent     intent.Intent      `json:"intent"`
	Params     intent.Params      `json:"params,omitempty"`
	Request    string             `json:"request"`
	Attachment *domain.Attachment `json:"attachment,omitempty"`
}

// Subject says what a disambiguation candidate key refers to.
type Subject string

const (
	SubjectEmployee Subject = "employee"
	SubjectTask     Subject = "task"
)

// Candidate is one numbered choice. Key is the employee phone or task id.
type Candidate struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

// Pending is the closed set of pending actions.
type Pending interface {
	Kind() PendingKind
	isPending()
}

// ConfirmUpdate awaits yes/no before overwriting a matched directory entry.
type ConfirmUpdate struct {
	Data          Staged
	ExistingIndex int
	Existing      domain.Employee
}

// Disambiguate awaits a 1-based choice among Matches.
type Disambiguate struct {
	Data    Staged
	Subject Subject
	Query   string
	Matches []Candidate
}

// PendingDocument holds a document that arrived without instructions.
type PendingDocument struct {
	Document domain.Attachment
}

// TaskScope awaits whether a pending-tasks question was about the sender or
// their team.
type TaskScope struct {
	Data Staged
}

func (ConfirmUpdate) Kind() PendingKind   { return KindConfirmUpdate }
func (Disambiguate) Kind() PendingKind    { return KindDisambiguate }
func (PendingDocument) Kind() PendingKind { return KindDocument }
func (TaskScope) Kind() PendingKind       { return KindTaskScope }

func (ConfirmUpdate) isPending()   {}
func (Disambiguate) isPending()    {}
func (PendingDocument) isPending() {}
func (TaskScope) isPending()       {}

type envelope struct {
	Kind          PendingKind        `json:"kind"`
	Data          *Staged            `json:"data,omitempty"`
	ExistingIndex *int               `json:"existing_index,omitempty"`
	Existing      *domain.Employee   `json:"existing,omitempty"`
	Subject       Subject            `json:"subject,omitempty"`
	Query         string             `json:"query,omitempty"`
	Matches       []Candidate        `json:"matches,omitempty"`
	Document      *domain.Attachment `json:"document,omitempty"`
}

// EncodePending serialises p as a tagged JSON record.
func EncodePending(p Pending) ([]byte, error) {
	var env envelope
	switch v := p.(type) {
	case ConfirmUpdate:
		idx := v.ExistingIndex
		env = envelope{Kind: KindConfirmUpdate, Data: &v.Data, ExistingIndex: &idx, Existing: &v.Existing}
	case Disambiguate:
		env = envelope{Kind: KindDisambiguate, Data: &v.Data, Subject: v.Subject, Query: v.Query, Matches: v.Matches}
	case PendingDocument:
		env = envelope{Kind: KindDocument, Document: &v.Document}
	case TaskScope:
		env = envelope{Kind: KindTaskScope, Data: &v.Data}
	default:
		return nil, fmt.Errorf("conversation.EncodePending: %T: %w", p, ErrUnknownPending)
	}

	b, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("conversation.EncodePending: %w", err)
	}
	return b, nil
}

// DecodePending parses a record written by EncodePending.
func DecodePending(b []byte) (Pending, error) {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("conversation.DecodePending: %w", err)
	}

	switch env.Kind {
	case KindConfirmUpdate:
		if env.Data == nil || env.Existing == nil {
			break
		}
		idx := 0
		if env.ExistingIndex != nil {
			idx = *env.ExistingIndex
		}
		return ConfirmUpdate{Data: *env.Data, ExistingIndex: idx, Existing: *env.Existing}, nil
	case KindDisambiguate:
		if env.Data == nil || len(env.Matches) == 0 {
			break
		}
		subject := env.Subject
		if subject == "" {
			subject = SubjectEmployee
		}
		return Disambiguate{Data: *env.Data, Subject: subject, Query: env.Query, Matches: env.Matches}, nil
	case KindDocument:
		if env.Document == nil {
			break
		}
		return PendingDocument{Document: *env.Document}, nil
	case KindTaskScope:
		if env.Data == nil {
			break
		}
		return TaskScope{Data: *env.Data}, nil
	}
	return nil, fmt.Errorf("conversation.DecodePending: kind %q: %w", env.Kind, ErrUnknownPending)
}

// State names the conversation state a pending record puts a session in.
type State string

const (
	StateFresh                       State = "FRESH"
	StateAwaitingConfirmation        State = "AWAITING_CONFIRMATION"
	StateAwaitingDisambiguation      State = "AWAITING_DISAMBIGUATION"
	StateAwaitingDocumentInstruction State = "AWAITING_DOCUMENT_INSTRUCTION"
	StateAwaitingTaskScope           State = "AWAITING_TASK_SCOPE"
)

// StateOf derives the conversation state from the pending record, nil meaning
// none.
func StateOf(p Pending) State {
	switch p.(type) {
	case ConfirmUpdate:
		return StateAwaitingConfirmation
	case Disambiguate:
		return StateAwaitingDisambiguation
	case PendingDocument:
		return StateAwaitingDocumentInstruction
	case TaskScope:
		return StateAwaitingTaskScope
	default:
		return StateFresh
	}
}

// numberedList renders candidates as "1. label" lines.
func numberedList(matches []Candidate) string {
	var b strings.Builder
	for i, m := range matches {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%d. %s", i+1, m.Label)
	}
	return b.String()
}
