package v1_test

import (
	"context"
	"errors"

	"github.com/gosuda/taskbot/internal/domain"
	"github.com/gosuda/taskbot/internal/server/middleware"
)

var errStoreDown = errors.New("connection refused")

func operatorCtx() context.Context {
	ctx := context.WithValue(context.Background(), middleware.ContextKeySubject, "ops@corp.com")
	return context.WithValue(ctx, middleware.ContextKeyUserRole, "admin")
}

// ---------------------------------------------------------------------------
// Mock SessionStore
// ---------------------------------------------------------------------------

type mockSessionStore struct {
	activeFunc  func(ctx context.Context, userKey string) (string, bool, error)
	historyFunc func(ctx context.Context, sessionID string) ([]domain.Message, error)
	pendingFunc func(ctx context.Context, sessionID string) ([]byte, bool, error)
	endFunc     func(ctx context.Context, userKey, sessionID string) error
}

func (m *mockSessionStore) ActiveSession(ctx context.Context, userKey string) (string, bool, error) {
	return m.activeFunc(ctx, userKey)
}

func (m *mockSessionStore) History(ctx context.Context, sessionID string) ([]domain.Message, error) {
	return m.historyFunc(ctx, sessionID)
}

func (m *mockSessionStore) GetPending(ctx context.Context, sessionID string) ([]byte, bool, error) {
	return m.pendingFunc(ctx, sessionID)
}

func (m *mockSessionStore) EndSession(ctx context.Context, userKey, sessionID string) error {
	return m.endFunc(ctx, userKey, sessionID)
}

// ---------------------------------------------------------------------------
// Mock Directory
// ---------------------------------------------------------------------------

type mockDirectory struct {
	employees []*domain.Employee
	links     map[string][]*domain.MessengerLink
	err       error
}

func (m *mockDirectory) FindByPhoneOrEmail(_ context.Context, key string) (*domain.Employee, error) {
	if m.err != nil {
		return nil, m.err
	}
	for _, e := range m.employees {
		if e.Phone == key || (e.Email != "" && e.Email == key) {
			return e, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockDirectory) FindDirectReports(_ context.Context, phone string) ([]*domain.Employee, error) {
	var out []*domain.Employee
	for _, e := range m.employees {
		if e.ManagerPhone == phone && e.Phone != phone {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockDirectory) SearchByName(_ context.Context, fragment string) ([]*domain.Employee, error) {
	var out []*domain.Employee
	for _, e := range m.employees {
		if e.MatchesName(fragment) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockDirectory) ListAll(_ context.Context) ([]*domain.Employee, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.employees, nil
}

func (m *mockDirectory) ListMessengerLinks(_ context.Context, phone string) ([]*domain.MessengerLink, error) {
	return m.links[phone], nil
}

func org() *mockDirectory {
	return &mockDirectory{
		employees: []*domain.Employee{
			{Name: "Asha", Phone: "100", ManagerPhone: "100"},
			{Name: "Vikram", Phone: "200", ManagerPhone: "100"},
			{Name: "Raj Kumar", Phone: "300", ManagerPhone: "200"},
			// Cycle below Raj: 301 -> 302 -> 301.
			{Name: "Lina", Phone: "301", ManagerPhone: "302"},
			{Name: "Omar", Phone: "302", ManagerPhone: "301"},
		},
		links: map[string][]*domain.MessengerLink{
			"200": {{Platform: "slack", ExternalID: "U200", Phone: "200"}},
		},
	}
}

// ---------------------------------------------------------------------------
// Mock Pinger
// ---------------------------------------------------------------------------

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }
