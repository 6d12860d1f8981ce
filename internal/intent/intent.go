// Package intent classifies inbound requests, extracts their parameters and
// guards an in-flight request against silent topic changes.
package intent

import (
	"slices"
	"strings"

	"github.com/gosuda/taskbot/internal/domain"
)

// Intent is a request category from the closed supported set.
type Intent string

const (
	AssignTask            Intent = "assign_task"
	ViewPerformance       Intent = "view_performance"
	ViewTeam              Intent = "view_team"
	UpdateTaskStatus      Intent = "update_task_status"
	ViewOwnTasks          Intent = "view_own_tasks"
	PendingTasksAmbiguous Intent = "pending_tasks_ambiguous"
	AddUser               Intent = "add_user"
	DeleteUser            Intent = "delete_user"
)

// All lists the supported intents.
var All = []Intent{
	AssignTask, ViewPerformance, ViewTeam, UpdateTaskStatus,
	ViewOwnTasks, PendingTasksAmbiguous, AddUser, DeleteUser,
}

// Parse maps a model-produced tag onto the closed set.
func Parse(s string) (Intent, bool) {
	i := Intent(strings.ToLower(strings.TrimSpace(s)))
	if slices.Contains(All, i) {
		return i, true
	}
	return "", false
}

// Describe renders the intent in user-facing words.
func (i Intent) Describe() string {
	switch i {
	case AssignTask:
		return "assigning a task"
	case ViewPerformance:
		return "reviewing task progress"
	case ViewTeam:
		return "viewing your team"
	case UpdateTaskStatus:
		return "updating a task"
	case ViewOwnTasks, PendingTasksAmbiguous:
		return "checking pending tasks"
	case AddUser:
		return "adding a team member"
	case DeleteUser:
		return "removing a team member"
	default:
		return "your earlier request"
	}
}

func (i Intent) pendingTasks() bool {
	return i == ViewOwnTasks || i == ViewPerformance || i == PendingTasksAmbiguous
}

// Parameter names shared by the extractor, the engine and action handlers.
const (
	ParamAssignee     = "assignee"
	ParamTitle        = "title"
	ParamDescription  = "description"
	ParamDeadline     = "deadline"
	ParamTask         = "task"
	ParamStatus       = "status"
	ParamName         = "name"
	ParamPhone        = "phone"
	ParamEmail        = "email"
	ParamManagerPhone = "manager_phone"
	ParamPerson       = "person"
	ParamScope        = "scope"
)

type fieldSpec struct {
	required []string
	optional []string
}

var fields = map[Intent]fieldSpec{
	AssignTask:       {required: []string{ParamAssignee, ParamTitle}, optional: []string{ParamDescription, ParamDeadline}},
	UpdateTaskStatus: {required: []string{ParamTask, ParamStatus}},
	AddUser:          {required: []string{ParamName, ParamPhone}, optional: []string{ParamEmail, ParamManagerPhone}},
	DeleteUser:       {required: []string{ParamName}},
	ViewPerformance:  {optional: []string{ParamPerson, ParamScope}},
}

// Fields returns the required and optional parameter names for the intent.
func (i Intent) Fields() (required, optional []string) {
	f := fields[i]
	return f.required, f.optional
}

// Params are the string-valued parameters collected for a request.
type Params map[string]string

// Missing returns the required fields of in that are absent or blank.
func (p Params) Missing(in Intent) []string {
	var missing []string
	for _, f := range fields[in].required {
		if strings.TrimSpace(p[f]) == "" {
			missing = append(missing, f)
		}
	}
	return missing
}

// Merge returns a copy of p overlaid with the non-blank values of other.
func (p Params) Merge(other Params) Params {
	out := make(Params, len(p)+len(other))
	for k, v := range p {
		out[k] = v
	}
	for k, v := range other {
		if strings.TrimSpace(v) != "" {
			out[k] = strings.TrimSpace(v)
		}
	}
	return out
}

// Clone returns a copy of p.
func (p Params) Clone() Params {
	return p.Merge(nil)
}

const (
	recordPrefix = "INTENT_SET: "
	recordSep    = " | "
	// ClarifyPrefix marks an assistant message that asked the user to choose
	// between the in-flight request and a new one.
	ClarifyPrefix = "[CLARIFY] "
)

// Record renders the system history entry marking the in-flight request.
func Record(in Intent, request string) string {
	return recordPrefix + string(in) + recordSep + request
}

// Active returns the most recently recorded intent and the request text it
// was set for.
func Active(history []domain.Message) (Intent, string, bool) {
	for i := len(history) - 1; i >= 0; i-- {
		m := history[i]
		if m.Role != domain.RoleSystem || !strings.HasPrefix(m.Content, recordPrefix) {
			continue
		}
		body := strings.TrimPrefix(m.Content, recordPrefix)
		tag, request, _ := strings.Cut(body, recordSep)
		in, ok := Parse(tag)
		if !ok {
			continue
		}
		return in, request, true
	}
	return "", "", false
}

// Transcript renders the user and assistant turns of history, one per line.
// System bookkeeping entries are excluded.
func Transcript(history []domain.Message) string {
	var b strings.Builder
	for _, m := range history {
		switch m.Role {
		case domain.RoleUser:
			b.WriteString("User: ")
		case domain.RoleAssistant:
			b.WriteString("Assistant: ")
		default:
			continue
		}
		b.WriteString(strings.TrimPrefix(m.Content, ClarifyPrefix))
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

func lastAssistant(history []domain.Message) (domain.Message, bool) {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == domain.RoleAssistant {
			return history[i], true
		}
	}
	return domain.Message{}, false
}

// containsWord reports whether word occurs in text as a whole word,
// ignoring case and punctuation.
func containsWord(text, word string) bool {
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	}) {
		if w == word {
			return true
		}
	}
	return false
}
