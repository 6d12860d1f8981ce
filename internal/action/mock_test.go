package action_test

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/gosuda/taskbot/internal/domain"
	"github.com/gosuda/taskbot/internal/notify"
)

// ---------------------------------------------------------------------------
// In-memory directory
// ---------------------------------------------------------------------------

type memDirectory struct {
	mu        sync.Mutex
	employees []*domain.Employee
	createErr error
}

func newDirectory(es ...*domain.Employee) *memDirectory {
	return &memDirectory{employees: es}
}

func (d *memDirectory) FindByPhoneOrEmail(_ context.Context, key string) (*domain.Employee, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, e := range d.employees {
		if e.Phone == key || (e.Email != "" && e.Email == key) {
			cp := *e
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("memDirectory: %w", domain.ErrNotFound)
}

func (d *memDirectory) FindDirectReports(_ context.Context, phone string) ([]*domain.Employee, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []*domain.Employee
	for _, e := range d.employees {
		if e.ManagerPhone == phone && e.Phone != phone {
			out = append(out, e)
		}
	}
	return out, nil
}

func (d *memDirectory) SearchByName(_ context.Context, fragment string) ([]*domain.Employee, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []*domain.Employee
	for _, e := range d.employees {
		if e.MatchesName(fragment) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (d *memDirectory) Create(_ context.Context, e *domain.Employee) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.createErr != nil {
		return d.createErr
	}
	for _, x := range d.employees {
		if x.Phone == e.Phone {
			return fmt.Errorf("memDirectory.Create: %w", domain.ErrConflict)
		}
	}
	cp := *e
	d.employees = append(d.employees, &cp)
	return nil
}

func (d *memDirectory) Update(_ context.Context, e *domain.Employee) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, x := range d.employees {
		if x.Phone == e.Phone {
			cp := *e
			d.employees[i] = &cp
			return nil
		}
	}
	return fmt.Errorf("memDirectory.Update: %w", domain.ErrNotFound)
}

func (d *memDirectory) Delete(_ context.Context, phone string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, x := range d.employees {
		if x.Phone == phone {
			d.employees = append(d.employees[:i], d.employees[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("memDirectory.Delete: %w", domain.ErrNotFound)
}

func (d *memDirectory) get(phone string) *domain.Employee {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, e := range d.employees {
		if e.Phone == phone {
			return e
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// In-memory tasks
// ---------------------------------------------------------------------------

type memTasks struct {
	mu        sync.Mutex
	tasks     []*domain.Task
	createErr error
}

func (m *memTasks) Create(_ context.Context, t *domain.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	cp := *t
	m.tasks = append(m.tasks, &cp)
	return nil
}

func (m *memTasks) GetByID(_ context.Context, id uuid.UUID) (*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tasks {
		if t.ID == id {
			cp := *t
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memTasks) ListByAssignee(_ context.Context, phone string) ([]*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Task
	for _, t := range m.tasks {
		if t.AssigneePhone == phone {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memTasks) UpdateStatus(_ context.Context, id uuid.UUID, status domain.TaskStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tasks {
		if t.ID == id {
			t.Status = status
			return nil
		}
	}
	return domain.ErrNotFound
}

// ---------------------------------------------------------------------------
// Notifications
// ---------------------------------------------------------------------------

type mockPublisher struct {
	mu     sync.Mutex
	events []notify.Event
	err    error
}

func (p *mockPublisher) Publish(_ context.Context, ev notify.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

// org: Asha (root) -> Vikram -> {Raj Kumar, Raj Patel}; Neha Sharma under Asha;
// Outsider is a separate root.
func org() []*domain.Employee {
	return []*domain.Employee{
		{Name: "Asha Rao", Phone: "100", ManagerPhone: "100"},
		{Name: "Vikram Singh", Phone: "200", ManagerPhone: "100"},
		{Name: "Raj Kumar", Phone: "300", ManagerPhone: "200"},
		{Name: "Raj Patel", Phone: "301", ManagerPhone: "200"},
		{Name: "Neha Sharma", Phone: "400", ManagerPhone: "100", Email: "neha.s@corp.com"},
		{Name: "Outsider", Phone: "900", ManagerPhone: "900"},
	}
}
