// Package action executes fully resolved requests against the directory and
// task store.
package action

import (
	"context"
	"errors"
	"fmt"

	"github.com/gosuda/taskbot/internal/domain"
	"github.com/gosuda/taskbot/internal/intent"
)

// Kind names an executable action.
type Kind string

const (
	AssignTask       Kind = "assign_task"
	UpdateTaskStatus Kind = "update_task_status"
	ViewOwnTasks     Kind = "view_own_tasks"
	ViewPerformance  Kind = "view_performance"
	ViewTeam         Kind = "view_team"
	AddUser          Kind = "add_user"
	UpdateUser       Kind = "update_user"
	DeleteUser       Kind = "delete_user"
)

// ErrRejected marks a business failure whose message is safe to show the user.
var ErrRejected = errors.New("action: rejected")

// ErrUnknownKind is returned by Registry.Dispatch for unregistered kinds.
var ErrUnknownKind = errors.New("action: unknown kind")

type rejection struct {
	msg string
}

func (r *rejection) Error() string { return r.msg }
func (r *rejection) Unwrap() error { return ErrRejected }

// Reject builds an ErrRejected error carrying a user-facing message.
func Reject(format string, args ...any) error {
	return &rejection{msg: fmt.Sprintf(format, args...)}
}

// RejectionMessage returns the user-facing message of a rejection.
func RejectionMessage(err error) (string, bool) {
	var r *rejection
	if errors.As(err, &r) {
		return r.msg, true
	}
	return "", false
}

// Target is the single entity an action applies to. At most one field is set.
type Target struct {
	Employee *domain.Employee
	Task     *domain.Task
}

// Request is a fully resolved action invocation.
type Request struct {
	Sender     *domain.Employee
	Params     intent.Params
	Target     Target
	Attachment *domain.Attachment
}

// Result is what an action produced for the requester.
type Result struct {
	Reply    string
	Params   intent.Params
	Document *domain.Attachment
}

type Handler interface {
	Handle(ctx context.Context, req Request) (Result, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, req Request) (Result, error)

func (f HandlerFunc) Handle(ctx context.Context, req Request) (Result, error) {
	return f(ctx, req)
}

// Registry maps action kinds to handlers.
type Registry struct {
	handlers map[Kind]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[Kind]Handler)}
}

func (r *Registry) Register(kind Kind, h Handler) {
	r.handlers[kind] = h
}

func (r *Registry) Lookup(kind Kind) (Handler, bool) {
	h, ok := r.handlers[kind]
	return h, ok
}

func (r *Registry) Dispatch(ctx context.Context, kind Kind, req Request) (Result, error) {
	h, ok := r.handlers[kind]
	if !ok {
		return Result{}, fmt.Errorf("action.Registry.Dispatch: %q: %w", kind, ErrUnknownKind)
	}
	res, err := h.Handle(ctx, req)
	if err != nil {
		return Result{}, fmt.Errorf("action.Registry.Dispatch: %s: %w", kind, err)
	}
	if res.Params == nil {
		res.Params = req.Params
	}
	return res, nil
}
