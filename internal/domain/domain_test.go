package domain_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/taskbot/internal/domain"
)

// ---------------------------------------------------------------------------
// In-memory directory
// ---------------------------------------------------------------------------

type memDirectory struct {
	employees []*domain.Employee
	reportErr error
	findErr   error
}

func (d *memDirectory) FindByPhoneOrEmail(_ context.Context, key string) (*domain.Employee, error) {
	if d.findErr != nil {
		return nil, d.findErr
	}
	for _, e := range d.employees {
		if e.Phone == key || (e.Email != "" && e.Email == key) {
			return e, nil
		}
	}
	return nil, fmt.Errorf("memDirectory: %w", domain.ErrNotFound)
}

func (d *memDirectory) FindDirectReports(_ context.Context, phone string) ([]*domain.Employee, error) {
	if d.reportErr != nil {
		return nil, d.reportErr
	}
	var out []*domain.Employee
	for _, e := range d.employees {
		if e.ManagerPhone == phone && e.Phone != phone {
			out = append(out, e)
		}
	}
	return out, nil
}

func (d *memDirectory) SearchByName(_ context.Context, fragment string) ([]*domain.Employee, error) {
	var out []*domain.Employee
	for _, e := range d.employees {
		if e.MatchesName(fragment) {
			out = append(out, e)
		}
	}
	return out, nil
}

func phones(es []*domain.Employee) []string {
	out := make([]string, 0, len(es))
	for _, e := range es {
		out = append(out, e.Phone)
	}
	return out
}

// ---------------------------------------------------------------------------
// TaskStatus
// ---------------------------------------------------------------------------

func TestTaskStatus_ValidTransition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from domain.TaskStatus
		to   domain.TaskStatus
		want bool
	}{
		{domain.TaskStatusPending, domain.TaskStatusInProgress, true},
		{domain.TaskStatusPending, domain.TaskStatusCompleted, true},
		{domain.TaskStatusPending, domain.TaskStatusPending, false},

		{domain.TaskStatusInProgress, domain.TaskStatusCompleted, true},
		{domain.TaskStatusInProgress, domain.TaskStatusPending, true},
		{domain.TaskStatusInProgress, domain.TaskStatusInProgress, false},

		{domain.TaskStatusCompleted, domain.TaskStatusInProgress, true}, // reopen
		{domain.TaskStatusCompleted, domain.TaskStatusPending, false},
		{domain.TaskStatusCompleted, domain.TaskStatusCompleted, false},

		{domain.TaskStatus("bogus"), domain.TaskStatusPending, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.from.ValidTransition(tt.to))
		})
	}
}

func TestParseTaskStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want domain.TaskStatus
		ok   bool
	}{
		{"done", domain.TaskStatusCompleted, true},
		{"  Completed ", domain.TaskStatusCompleted, true},
		{"in-progress", domain.TaskStatusInProgress, true},
		{"In Progress", domain.TaskStatusInProgress, true},
		{"started", domain.TaskStatusInProgress, true},
		{"pending", domain.TaskStatusPending, true},
		{"to do", domain.TaskStatusPending, true},
		{"exploded", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, ok := domain.ParseTaskStatus(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTaskStatus_Open(t *testing.T) {
	t.Parallel()

	assert.True(t, domain.TaskStatusPending.Open())
	assert.True(t, domain.TaskStatusInProgress.Open())
	assert.False(t, domain.TaskStatusCompleted.Open())
}

func TestTaskStatus_Label(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "in progress", domain.TaskStatusInProgress.Label())
	assert.Equal(t, "pending", domain.TaskStatusPending.Label())
}

// ---------------------------------------------------------------------------
// Employee helpers
// ---------------------------------------------------------------------------

func TestEmployee_MatchesName(t *testing.T) {
	t.Parallel()

	e := &domain.Employee{Name: "Neha Sharma"}

	assert.True(t, e.MatchesName("neha"))
	assert.True(t, e.MatchesName("SHARMA"))
	assert.True(t, e.MatchesName(" ha Sh "))
	assert.False(t, e.MatchesName("rahul"))
	assert.False(t, e.MatchesName("   "), "blank fragment never matches")
}

func TestEmployee_IsRootAndLabel(t *testing.T) {
	t.Parallel()

	root := &domain.Employee{Name: "Boss", Phone: "1", ManagerPhone: "1"}
	orphan := &domain.Employee{Name: "Solo", Phone: "2"}
	report := &domain.Employee{Name: "Raj", Phone: "3", ManagerPhone: "1"}

	assert.True(t, root.IsRoot())
	assert.True(t, orphan.IsRoot())
	assert.False(t, report.IsRoot())
	assert.Equal(t, "Raj (3)", report.Label())
	assert.Equal(t, "Nameless", (&domain.Employee{Name: "Nameless"}).Label())
}

// ---------------------------------------------------------------------------
// Hierarchy traversal
// ---------------------------------------------------------------------------

func TestSubordinates(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("multi-level tree breadth first", func(t *testing.T) {
		t.Parallel()

		dir := &memDirectory{employees: []*domain.Employee{
			{Name: "CEO", Phone: "1", ManagerPhone: "1"},
			{Name: "VP A", Phone: "2", ManagerPhone: "1"},
			{Name: "VP B", Phone: "3", ManagerPhone: "1"},
			{Name: "Eng", Phone: "4", ManagerPhone: "2"},
			{Name: "Intern", Phone: "5", ManagerPhone: "4"},
		}}

		subs, err := domain.Subordinates(ctx, dir, "1")
		require.NoError(t, err)
		assert.Equal(t, []string{"2", "3", "4", "5"}, phones(subs))

		subs, err = domain.Subordinates(ctx, dir, "2")
		require.NoError(t, err)
		assert.Equal(t, []string{"4", "5"}, phones(subs))
	})

	t.Run("two-node manager cycle terminates", func(t *testing.T) {
		t.Parallel()

		dir := &memDirectory{employees: []*domain.Employee{
			{Name: "A", Phone: "A", ManagerPhone: "B"},
			{Name: "B", Phone: "B", ManagerPhone: "A"},
		}}

		subs, err := domain.Subordinates(ctx, dir, "A")
		require.NoError(t, err)
		assert.Equal(t, []string{"B"}, phones(subs), "the root is never listed as its own subordinate")
	})

	t.Run("longer cycle with branches terminates", func(t *testing.T) {
		t.Parallel()

		dir := &memDirectory{employees: []*domain.Employee{
			{Name: "A", Phone: "A", ManagerPhone: "C"},
			{Name: "B", Phone: "B", ManagerPhone: "A"},
			{Name: "C", Phone: "C", ManagerPhone: "B"},
			{Name: "D", Phone: "D", ManagerPhone: "B"},
		}}

		subs, err := domain.Subordinates(ctx, dir, "A")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"B", "C", "D"}, phones(subs))
	})

	t.Run("leaf has no subordinates", func(t *testing.T) {
		t.Parallel()

		dir := &memDirectory{employees: []*domain.Employee{
			{Name: "Leaf", Phone: "9", ManagerPhone: "8"},
		}}

		subs, err := domain.Subordinates(ctx, dir, "9")
		require.NoError(t, err)
		assert.Empty(t, subs)
	})

	t.Run("store error propagates", func(t *testing.T) {
		t.Parallel()

		boom := errors.New("boom")
		dir := &memDirectory{reportErr: boom}

		_, err := domain.Subordinates(ctx, dir, "1")
		require.ErrorIs(t, err, boom)
	})

	t.Run("large chain stays iterative", func(t *testing.T) {
		t.Parallel()

		const n = 5000
		dir := &memDirectory{}
		for i := range n {
			dir.employees = append(dir.employees, &domain.Employee{
				Name:         fmt.Sprintf("E%d", i),
				Phone:        fmt.Sprintf("%d", i),
				ManagerPhone: fmt.Sprintf("%d", max(i-1, 0)),
			})
		}

		subs, err := domain.Subordinates(ctx, dir, "0")
		require.NoError(t, err)
		assert.Len(t, subs, n-1)
	})
}

func TestManagers(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("chain up to root", func(t *testing.T) {
		t.Parallel()

		dir := &memDirectory{employees: []*domain.Employee{
			{Name: "CEO", Phone: "1", ManagerPhone: "1"},
			{Name: "VP", Phone: "2", ManagerPhone: "1"},
			{Name: "Eng", Phone: "3", ManagerPhone: "2"},
		}}

		chain, err := domain.Managers(ctx, dir, "3")
		require.NoError(t, err)
		assert.Equal(t, []string{"2", "1"}, phones(chain))
	})

	t.Run("cycle terminates", func(t *testing.T) {
		t.Parallel()

		dir := &memDirectory{employees: []*domain.Employee{
			{Name: "A", Phone: "A", ManagerPhone: "B"},
			{Name: "B", Phone: "B", ManagerPhone: "A"},
		}}

		chain, err := domain.Managers(ctx, dir, "A")
		require.NoError(t, err)
		assert.Equal(t, []string{"B"}, phones(chain))
	})

	t.Run("dangling manager stops the walk", func(t *testing.T) {
		t.Parallel()

		dir := &memDirectory{employees: []*domain.Employee{
			{Name: "Eng", Phone: "3", ManagerPhone: "404"},
		}}

		chain, err := domain.Managers(ctx, dir, "3")
		require.NoError(t, err)
		assert.Empty(t, chain)
	})

	t.Run("unknown start is an error", func(t *testing.T) {
		t.Parallel()

		_, err := domain.Managers(ctx, &memDirectory{}, "nobody")
		require.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("store error propagates", func(t *testing.T) {
		t.Parallel()

		boom := errors.New("boom")
		_, err := domain.Managers(ctx, &memDirectory{findErr: boom}, "3")
		require.ErrorIs(t, err, boom)
	})
}

func TestIsInSubtree(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := &memDirectory{employees: []*domain.Employee{
		{Name: "Boss", Phone: "1", ManagerPhone: "1"},
		{Name: "Mid", Phone: "2", ManagerPhone: "1"},
		{Name: "Low", Phone: "3", ManagerPhone: "2"},
		{Name: "Other", Phone: "4", ManagerPhone: "4"},
		{Name: "LoopA", Phone: "5", ManagerPhone: "6"},
		{Name: "LoopB", Phone: "6", ManagerPhone: "5"},
	}}

	tests := []struct {
		manager, target string
		want            bool
	}{
		{"1", "1", true},
		{"1", "3", true},
		{"2", "3", true},
		{"3", "2", false},
		{"1", "4", false},
		{"6", "5", true},
		{"5", "6", true},
		{"1", "5", false},
		{"1", "nobody", false},
	}

	for _, tt := range tests {
		t.Run(strings.Join([]string{tt.manager, tt.target}, "->"), func(t *testing.T) {
			t.Parallel()
			got, err := domain.IsInSubtree(ctx, dir, tt.manager, tt.target)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsInSubtree_StoreError(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	_, err := domain.IsInSubtree(context.Background(), &memDirectory{findErr: boom}, "1", "3")
	require.ErrorIs(t, err, boom)
}
