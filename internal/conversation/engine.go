// Package conversation sequences a user's messages into resolved actions:
// deduplication, session state, continuity checks, classification, pending
// confirmations and disambiguation, and dispatch.
package conversation

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/taskbot/internal/action"
	"github.com/gosuda/taskbot/internal/domain"
	"github.com/gosuda/taskbot/internal/intent"
)

// SessionStore persists per-user conversation state.
type SessionStore interface {
	GetOrCreateSession(ctx context.Context, userKey string) (string, error)
	AppendMessage(ctx context.Context, sessionID string, role domain.Role, content string) error
	History(ctx context.Context, sessionID string) ([]domain.Message, error)
	SetPending(ctx context.Context, sessionID string, payload []byte) error
	GetPending(ctx context.Context, sessionID string) ([]byte, bool, error)
	ClearPending(ctx context.Context, sessionID string) error
	SetParams(ctx context.Context, sessionID string, params map[string]string) error
	GetParams(ctx context.Context, sessionID string) (map[string]string, error)
	EndSession(ctx context.Context, userKey, sessionID string) error
}

type Deduplicator interface {
	Admit(ctx context.Context, messageID string) (bool, error)
}

type Classifier interface {
	Classify(ctx context.Context, text string, hasAttachment bool) intent.Classification
}

type Extractor interface {
	Extract(ctx context.Context, in intent.Intent, transcript string, known intent.Params) (intent.Params, error)
}

type Guard interface {
	Check(ctx context.Context, sessionID string, history []domain.Message, text string) (intent.Verdict, error)
}

// TaskReader is the read side of the task store used to resolve task names.
type TaskReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error)
	ListByAssignee(ctx context.Context, phone string) ([]*domain.Task, error)
}

// Dispatcher executes resolved actions.
type Dispatcher interface {
	Dispatch(ctx context.Context, kind action.Kind, req action.Request) (action.Result, error)
}

// Deps are the Engine's collaborators.
type Deps struct {
	Sessions   SessionStore
	Dedup      Deduplicator
	Directory  domain.DirectoryReader
	Tasks      TaskReader
	Classifier Classifier
	Extractor  Extractor
	Guard      Guard
	Actions    Dispatcher
}

// Inbound is one message delivered by a transport.
type Inbound struct {
	UserKey    string
	Text       string
	Attachment *domain.Attachment
	MessageID  string
}

// Reply is what the transport should send back. An empty Text means nothing
// is sent; Duplicate marks a redelivery that was suppressed.
type Reply struct {
	Text      string
	Document  *domain.Attachment
	Duplicate bool
}

// User-facing replies.
const (
	ReplyTrouble       = "Sorry, I'm having trouble right now. Please try again in a moment."
	ReplyNotRegistered = "You're not registered with me yet. Please ask your manager to add you."
	ReplyCancelled     = "Okay, I've cancelled that."
	ReplyUnsupported   = "Sorry, I can't help with that. I can assign tasks, update task status, show pending tasks or team progress, and add or remove team members."
	ReplyRephrase      = "Sorry, I didn't quite get that. Could you rephrase?"
	ReplyFailed        = "Sorry, something went wrong while doing that. Please try again."
	ReplyTaskScope     = "Do you mean:\n1. Your own pending tasks\n2. Your team's pending tasks\nReply 1 or 2."
)

// createNewParam marks params whose add_user request the user confirmed as a
// new person after being shown an existing match.
const createNewParam = "_create_new"

// Engine is the conversation state machine. It holds no per-user state of its
// own and is safe for concurrent use.
type Engine struct {
	sessions   SessionStore
	dedup      Deduplicator
	dir        domain.DirectoryReader
	tasks      TaskReader
	classifier Classifier
	extractor  Extractor
	guard      Guard
	actions    Dispatcher
}

func NewEngine(deps Deps) *Engine {
	return &Engine{
		sessions:   deps.Sessions,
		dedup:      deps.Dedup,
		dir:        deps.Directory,
		tasks:      deps.Tasks,
		classifier: deps.Classifier,
		extractor:  deps.Extractor,
		guard:      deps.Guard,
		actions:    deps.Actions,
	}
}

// turn carries the state of one HandleInbound call.
type turn struct {
	userKey    string
	sessionID  string
	sender     *domain.Employee
	text       string
	attachment *domain.Attachment
	logger     zerolog.Logger
}

// HandleInbound processes one delivery and returns the reply. Collaborator
// failures are turned into replies; nothing is returned as an error.
func (e *Engine) HandleInbound(ctx context.Context, in Inbound) Reply {
	text := strings.TrimSpace(in.Text)
	logger := log.With().Str("user_key", in.UserKey).Str("message_id", in.MessageID).Logger()

	if text == "" && in.Attachment == nil {
		return Reply{}
	}

	dedupKey := in.MessageID
	if dedupKey == "" && text == "" && in.Attachment != nil {
		dedupKey = in.Attachment.ID
	}
	admitted, err := e.dedup.Admit(ctx, dedupKey)
	if err != nil {
		logger.Error().Err(err).Msg("dedup unavailable")
		return Reply{Text: ReplyTrouble}
	}
	if !admitted {
		logger.Debug().Msg("duplicate delivery suppressed")
		return Reply{Duplicate: true}
	}

	sender, err := e.dir.FindByPhoneOrEmail(ctx, in.UserKey)
	if errors.Is(err, domain.ErrNotFound) {
		logger.Info().Msg("message from unregistered sender")
		return Reply{Text: ReplyNotRegistered}
	}
	if err != nil {
		logger.Error().Err(err).Msg("directory lookup failed")
		return Reply{Text: ReplyTrouble}
	}

	sessionID, err := e.sessions.GetOrCreateSession(ctx, in.UserKey)
	if err != nil {
		logger.Error().Err(err).Msg("session unavailable")
		return Reply{Text: ReplyTrouble}
	}

	t := &turn{
		userKey:    in.UserKey,
		sessionID:  sessionID,
		sender:     sender,
		text:       text,
		attachment: in.Attachment,
		logger:     logger.With().Str("session_id", sessionID).Logger(),
	}

	if err := e.sessions.AppendMessage(ctx, sessionID, domain.RoleUser, userContent(text, in.Attachment)); err != nil {
		return e.trouble(t, err, "append user message")
	}

	raw, ok, err := e.sessions.GetPending(ctx, sessionID)
	if err != nil {
		return e.trouble(t, err, "load pending action")
	}

	var pending Pending
	if ok {
		pending, err = DecodePending(raw)
		if err != nil {
			t.logger.Warn().Err(err).Msg("discarding undecodable pending action")
			if clearErr := e.sessions.ClearPending(ctx, sessionID); clearErr != nil {
				return e.trouble(t, clearErr, "clear pending action")
			}
			pending = nil
		}
	}

	if isCancel(text) && in.Attachment == nil {
		e.end(ctx, t)
		return Reply{Text: ReplyCancelled}
	}

	t.logger.Debug().Str("state", string(StateOf(pending))).Msg("handling message")

	switch p := pending.(type) {
	case ConfirmUpdate:
		return e.resolveConfirmation(ctx, t, p)
	case Disambiguate:
		return e.resolveDisambiguation(ctx, t, p)
	case TaskScope:
		return e.resolveTaskScope(ctx, t, p)
	case PendingDocument:
		if t.attachment == nil {
			doc := p.Document
			t.attachment = &doc
		}
	}

	return e.fresh(ctx, t)
}

// fresh handles a message that does not answer a pending question.
func (e *Engine) fresh(ctx context.Context, t *turn) Reply {
	if t.text == "" {
		// A bare document, new or replacing one already waiting.
		if err := e.setPending(ctx, t, PendingDocument{Document: *t.attachment}); err != nil {
			return e.trouble(t, err, "store pending document")
		}
		return e.ask(ctx, t, "I received "+documentName(t.attachment)+". What would you like me to do with it?")
	}

	history, err := e.sessions.History(ctx, t.sessionID)
	if err != nil {
		return e.trouble(t, err, "load history")
	}

	verdict, err := e.guard.Check(ctx, t.sessionID, history, t.text)
	if err != nil {
		return e.trouble(t, err, "continuity check")
	}

	var (
		in      intent.Intent
		request string
		known   = intent.Params{}
	)

	switch verdict.Decision {
	case intent.AskClarification:
		// The guard already recorded the question.
		return Reply{Text: verdict.Question}

	case intent.Continue:
		in, request = verdict.Intent, verdict.Request
		stored, err := e.sessions.GetParams(ctx, t.sessionID)
		if err != nil {
			return e.trouble(t, err, "load params")
		}
		known = intent.Params(stored)

	default:
		if verdict.Intent != "" {
			// A new request replaces whatever was being collected.
			if err := e.sessions.SetParams(ctx, t.sessionID, nil); err != nil {
				return e.trouble(t, err, "reset params")
			}
		}

		cls := e.classifier.Classify(ctx, t.text, t.attachment != nil)
		if !cls.Supported {
			t.logger.Info().Str("rationale", cls.Rationale).Msg("unsupported request")
			e.end(ctx, t)
			return Reply{Text: ReplyUnsupported}
		}
		in, request = cls.Intent, t.text
		if err := e.sessions.AppendMessage(ctx, t.sessionID, domain.RoleSystem, intent.Record(in, request)); err != nil {
			return e.trouble(t, err, "record intent")
		}
		history = append(history, domain.Message{Role: domain.RoleSystem, Content: intent.Record(in, request)})
	}

	t.logger = t.logger.With().Str("intent", string(in)).Logger()

	if in == intent.PendingTasksAmbiguous {
		staged := Staged{Intent: in, Request: request}
		if err := e.setPending(ctx, t, TaskScope{Data: staged}); err != nil {
			return e.trouble(t, err, "store task scope question")
		}
		return e.ask(ctx, t, ReplyTaskScope)
	}

	params, err := e.extractor.Extract(ctx, in, intent.Transcript(history), known)
	if err != nil {
		t.logger.Warn().Err(err).Msg("parameter extraction failed")
		return e.ask(ctx, t, ReplyRephrase)
	}

	return e.proceed(ctx, t, Staged{Intent: in, Params: params, Request: request, Attachment: t.attachment})
}

// proceed takes an extracted request to confirmation, a follow-up question,
// disambiguation or dispatch.
func (e *Engine) proceed(ctx context.Context, t *turn, s Staged) Reply {
	if s.Intent == intent.AddUser && s.Params[intent.ParamName] != "" && s.Params[createNewParam] == "" {
		matches, err := e.dir.SearchByName(ctx, s.Params[intent.ParamName])
		if err != nil {
			return e.trouble(t, err, "search directory")
		}
		if len(matches) > 0 {
			existing := *matches[0]
			if err := e.setPending(ctx, t, ConfirmUpdate{Data: s, ExistingIndex: 0, Existing: existing}); err != nil {
				return e.trouble(t, err, "store confirmation")
			}
			return e.ask(ctx, t, confirmPrompt(existing, s.Params[intent.ParamName]))
		}
	}

	if missing := s.Params.Missing(s.Intent); len(missing) > 0 {
		if err := e.sessions.SetParams(ctx, t.sessionID, s.Params); err != nil {
			return e.trouble(t, err, "store params")
		}
		if s.Attachment != nil {
			if err := e.setPending(ctx, t, PendingDocument{Document: *s.Attachment}); err != nil {
				return e.trouble(t, err, "store pending document")
			}
		}
		return e.ask(ctx, t, missingPrompt(missing))
	}

	return e.resolveTarget(ctx, t, s)
}

// resolveTarget finds the single entity the request applies to.
func (e *Engine) resolveTarget(ctx context.Context, t *turn, s Staged) Reply {
	switch s.Intent {
	case intent.AssignTask:
		return e.resolveEmployee(ctx, t, s, s.Params[intent.ParamAssignee])
	case intent.DeleteUser:
		return e.resolveEmployee(ctx, t, s, s.Params[intent.ParamName])
	case intent.ViewPerformance:
		if person := s.Params[intent.ParamPerson]; person != "" {
			return e.resolveEmployee(ctx, t, s, person)
		}
	case intent.UpdateTaskStatus:
		return e.resolveTask(ctx, t, s)
	}
	return e.dispatch(ctx, t, action.Kind(s.Intent), s, action.Target{})
}

func (e *Engine) resolveEmployee(ctx context.Context, t *turn, s Staged, name string) Reply {
	name = strings.TrimSpace(name)
	if isSelfReference(name) {
		return e.dispatch(ctx, t, action.Kind(s.Intent), s, action.Target{Employee: t.sender})
	}

	matches, err := e.dir.SearchByName(ctx, name)
	if err != nil {
		return e.trouble(t, err, "search directory")
	}

	switch len(matches) {
	case 0:
		e.end(ctx, t)
		return Reply{Text: "I couldn't find " + name + ". Please add them first."}
	case 1:
		return e.dispatch(ctx, t, action.Kind(s.Intent), s, action.Target{Employee: matches[0]})
	}

	candidates := make([]Candidate, 0, len(matches))
	for _, m := range matches {
		candidates = append(candidates, Candidate{Key: m.Phone, Label: m.Label()})
	}
	return e.askDisambiguation(ctx, t, Disambiguate{Data: s, Subject: SubjectEmployee, Query: name, Matches: candidates})
}

func (e *Engine) resolveTask(ctx context.Context, t *turn, s Staged) Reply {
	query := strings.TrimSpace(s.Params[intent.ParamTask])

	tasks, err := e.tasks.ListByAssignee(ctx, t.sender.Phone)
	if err != nil {
		return e.trouble(t, err, "list tasks")
	}

	lower := strings.ToLower(query)
	var matches []*domain.Task
	for _, task := range tasks {
		if strings.Contains(strings.ToLower(task.Title), lower) {
			matches = append(matches, task)
		}
	}

	switch len(matches) {
	case 0:
		e.end(ctx, t)
		return Reply{Text: "I couldn't find a task matching \"" + query + "\" assigned to you."}
	case 1:
		return e.dispatch(ctx, t, action.UpdateTaskStatus, s, action.Target{Task: matches[0]})
	}

	candidates := make([]Candidate, 0, len(matches))
	for _, m := range matches {
		candidates = append(candidates, Candidate{Key: m.ID.String(), Label: m.Title + " [" + m.Status.Label() + "]"})
	}
	return e.askDisambiguation(ctx, t, Disambiguate{Data: s, Subject: SubjectTask, Query: query, Matches: candidates})
}

func (e *Engine) askDisambiguation(ctx context.Context, t *turn, d Disambiguate) Reply {
	if err := e.setPending(ctx, t, d); err != nil {
		return e.trouble(t, err, "store disambiguation")
	}
	return e.ask(ctx, t, "I found several matches for \""+d.Query+"\":\n"+numberedList(d.Matches)+"\nReply with a number to choose.")
}

// dispatch runs the action and ends the session whatever the outcome.
func (e *Engine) dispatch(ctx context.Context, t *turn, kind action.Kind, s Staged, target action.Target) Reply {
	params := s.Params.Clone()
	delete(params, createNewParam)

	res, err := e.actions.Dispatch(ctx, kind, action.Request{
		Sender:     t.sender,
		Params:     params,
		Target:     target,
		Attachment: s.Attachment,
	})
	e.end(ctx, t)

	if err != nil {
		if msg, ok := action.RejectionMessage(err); ok {
			t.logger.Info().Str("action", string(kind)).Str("reason", msg).Msg("action rejected")
			return Reply{Text: msg}
		}
		t.logger.Error().Err(err).Str("action", string(kind)).Msg("action failed")
		return Reply{Text: ReplyFailed}
	}

	t.logger.Info().Str("action", string(kind)).Msg("action completed")
	return Reply{Text: res.Reply, Document: res.Document}
}

// ask records an assistant question and returns it, keeping the session.
func (e *Engine) ask(ctx context.Context, t *turn, text string) Reply {
	if err := e.sessions.AppendMessage(ctx, t.sessionID, domain.RoleAssistant, text); err != nil {
		t.logger.Warn().Err(err).Msg("failed to record assistant message")
	}
	return Reply{Text: text}
}

// reprompt asks again and restarts the pending expiry.
func (e *Engine) reprompt(ctx context.Context, t *turn, p Pending, text string) Reply {
	if err := e.setPending(ctx, t, p); err != nil {
		return e.trouble(t, err, "refresh pending action")
	}
	return e.ask(ctx, t, text)
}

func (e *Engine) setPending(ctx context.Context, t *turn, p Pending) error {
	b, err := EncodePending(p)
	if err != nil {
		return err
	}
	return e.sessions.SetPending(ctx, t.sessionID, b)
}

// end tears the session down. Failures are logged only: leftover keys expire
// or are overwritten by the next session.
func (e *Engine) end(ctx context.Context, t *turn) {
	if err := e.sessions.EndSession(ctx, t.userKey, t.sessionID); err != nil {
		t.logger.Warn().Err(err).Msg("session teardown incomplete")
	}
}

func (e *Engine) trouble(t *turn, err error, op string) Reply {
	t.logger.Error().Err(err).Str("op", op).Msg("conversation state unavailable")
	return Reply{Text: ReplyTrouble}
}

func userContent(text string, att *domain.Attachment) string {
	if att == nil {
		return text
	}
	note := "[document: " + documentName(att) + "]"
	if text == "" {
		return note
	}
	return text + " " + note
}

func documentName(att *domain.Attachment) string {
	if att.Filename != "" {
		return att.Filename
	}
	return "your document"
}

func normalizeReply(text string) string {
	return strings.ToLower(strings.Trim(strings.TrimSpace(text), ".!? "))
}

func isCancel(text string) bool {
	switch normalizeReply(text) {
	case "cancel", "stop", "nevermind", "never mind", "abort":
		return true
	}
	return false
}

func isSelfReference(name string) bool {
	switch strings.ToLower(name) {
	case "me", "myself", "self":
		return true
	}
	return false
}

var paramQuestions = map[string]string{
	intent.ParamAssignee: "who should do it",
	intent.ParamTitle:    "what the task is",
	intent.ParamTask:     "which task",
	intent.ParamStatus:   "the new status (pending, in progress or completed)",
	intent.ParamName:     "the person's name",
	intent.ParamPhone:    "their phone number",
}

func missingPrompt(missing []string) string {
	parts := make([]string, 0, len(missing))
	for _, m := range missing {
		q, ok := paramQuestions[m]
		if !ok {
			q = strings.ReplaceAll(m, "_", " ")
		}
		parts = append(parts, q)
	}
	return "Please tell me " + strings.Join(parts, " and ") + "."
}

func confirmPrompt(existing domain.Employee, name string) string {
	return existing.Label() + " is already in the directory. Do you want to update their details? " +
		"Reply yes to update " + existing.Name + ", or no to add " + name + " as a new person."
}

// --- Pending resolution ---

func (e *Engine) resolveConfirmation(ctx context.Context, t *turn, p ConfirmUpdate) Reply {
	switch normalizeReply(t.text) {
	case "yes", "y":
		existing, err := e.dir.FindByPhoneOrEmail(ctx, p.Existing.Phone)
		if errors.Is(err, domain.ErrNotFound) {
			e.end(ctx, t)
			return Reply{Text: p.Existing.Name + " is no longer in the directory."}
		}
		if err != nil {
			return e.trouble(t, err, "reload confirmation target")
		}
		return e.dispatch(ctx, t, action.UpdateUser, p.Data, action.Target{Employee: existing})

	case "no", "n":
		if err := e.sessions.ClearPending(ctx, t.sessionID); err != nil {
			return e.trouble(t, err, "clear confirmation")
		}
		s := p.Data
		s.Params = s.Params.Merge(intent.Params{createNewParam: "true"})
		if missing := s.Params.Missing(intent.AddUser); len(missing) > 0 {
			if err := e.sessions.SetParams(ctx, t.sessionID, s.Params); err != nil {
				return e.trouble(t, err, "store params")
			}
			return e.ask(ctx, t, "Okay, I'll add "+s.Params[intent.ParamName]+" as a new person. "+missingPrompt(missing))
		}
		return e.dispatch(ctx, t, action.AddUser, s, action.Target{})
	}

	return e.reprompt(ctx, t, p, "Please reply yes or no. "+confirmPrompt(p.Existing, p.Data.Params[intent.ParamName]))
}

func (e *Engine) resolveDisambiguation(ctx context.Context, t *turn, p Disambiguate) Reply {
	n, err := strconv.Atoi(normalizeReply(t.text))
	if err != nil || n < 1 || n > len(p.Matches) {
		return e.reprompt(ctx, t, p, "Please reply with a number between 1 and "+strconv.Itoa(len(p.Matches))+":\n"+numberedList(p.Matches))
	}
	choice := p.Matches[n-1]

	var target action.Target
	switch p.Subject {
	case SubjectTask:
		id, parseErr := uuid.Parse(choice.Key)
		if parseErr != nil {
			t.logger.Warn().Err(parseErr).Str("key", choice.Key).Msg("stored task candidate is invalid")
			e.end(ctx, t)
			return Reply{Text: ReplyFailed}
		}
		task, err := e.tasks.GetByID(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			e.end(ctx, t)
			return Reply{Text: "That task no longer exists."}
		}
		if err != nil {
			return e.trouble(t, err, "reload task")
		}
		target.Task = task
	default:
		emp, err := e.dir.FindByPhoneOrEmail(ctx, choice.Key)
		if errors.Is(err, domain.ErrNotFound) {
			e.end(ctx, t)
			return Reply{Text: choice.Label + " is no longer in the directory."}
		}
		if err != nil {
			return e.trouble(t, err, "reload employee")
		}
		target.Employee = emp
	}

	if err := e.sessions.ClearPending(ctx, t.sessionID); err != nil {
		return e.trouble(t, err, "clear disambiguation")
	}
	return e.dispatch(ctx, t, action.Kind(p.Data.Intent), p.Data, target)
}

func (e *Engine) resolveTaskScope(ctx context.Context, t *turn, p TaskScope) Reply {
	var kind action.Kind
	switch normalizeReply(t.text) {
	case "1", "my", "mine", "my tasks", "me":
		kind = action.ViewOwnTasks
	case "2", "team", "my team", "team tasks":
		kind = action.ViewPerformance
	default:
		return e.reprompt(ctx, t, p, ReplyTaskScope)
	}

	if err := e.sessions.ClearPending(ctx, t.sessionID); err != nil {
		return e.trouble(t, err, "clear task scope")
	}
	s := p.Data
	s.Intent = intent.Intent(kind)
	return e.dispatch(ctx, t, kind, s, action.Target{})
}
