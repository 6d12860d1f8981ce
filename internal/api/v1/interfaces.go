package v1

import (
	"context"

	"github.com/gosuda/taskbot/internal/domain"
)

// SessionStore is the slice of the conversation state store the admin API
// reads and clears. *redis.SessionStore satisfies this interface.
type SessionStore interface {
	ActiveSession(ctx context.Context, userKey string) (string, bool, error)
	History(ctx context.Context, sessionID string) ([]domain.Message, error)
	GetPending(ctx context.Context, sessionID string) ([]byte, bool, error)
	EndSession(ctx context.Context, userKey, sessionID string) error
}

// Directory abstracts the employee directory for handler testing.
// *postgres.EmployeeRepo satisfies this interface.
type Directory interface {
	domain.DirectoryReader
	ListAll(ctx context.Context) ([]*domain.Employee, error)
	ListMessengerLinks(ctx context.Context, phone string) ([]*domain.MessengerLink, error)
}

// Pinger is a dependency whose liveness the health check reports.
type Pinger interface {
	Ping(ctx context.Context) error
}
