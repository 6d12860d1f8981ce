package domain

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
)

// ParseTaskStatus maps free-form status words to a TaskStatus.
func ParseTaskStatus(s string) (TaskStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(strings.ReplaceAll(s, "-", " "))) {
	case "pending", "todo", "to do", "not started", "open":
		return TaskStatusPending, true
	case "in_progress", "in progress", "started", "ongoing", "working", "wip":
		return TaskStatusInProgress, true
	case "completed", "complete", "done", "finished", "closed":
		return TaskStatusCompleted, true
	default:
		return "", false
	}
}

// ValidTransition checks if a task state transition is allowed.
// Allowed: pending->in_progress|completed, in_progress->completed|pending,
// completed->in_progress (reopen).
func (s TaskStatus) ValidTransition(to TaskStatus) bool {
	switch s {
	case TaskStatusPending:
		return to == TaskStatusInProgress || to == TaskStatusCompleted
	case TaskStatusInProgress:
		return to == TaskStatusCompleted || to == TaskStatusPending
	case TaskStatusCompleted:
		return to == TaskStatusInProgress
	default:
		return false
	}
}

// Label renders the status for people ("in progress").
func (s TaskStatus) Label() string {
	return strings.ReplaceAll(string(s), "_", " ")
}

// Open reports whether the task still needs work.
func (s TaskStatus) Open() bool {
	return s == TaskStatusPending || s == TaskStatusInProgress
}

type Task struct {
	ID            uuid.UUID  `json:"id"`
	Title         string     `json:"title"`
	Description   string     `json:"description,omitempty"`
	AssigneePhone string     `json:"assignee_phone"`
	AssignerPhone string     `json:"assigner_phone"`
	Status        TaskStatus `json:"status"`
	Deadline      *time.Time `json:"deadline,omitempty"`
	DocumentID    string     `json:"document_id,omitempty"`
	DocumentName  string     `json:"document_name,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

var ErrInvalidTransition = errors.New("task: invalid state transition")

type TaskRepository interface {
	Create(ctx context.Context, t *Task) error
	GetByID(ctx context.Context, id uuid.UUID) (*Task, error)
	ListByAssignee(ctx context.Context, phone string) ([]*Task, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status TaskStatus) error
}
