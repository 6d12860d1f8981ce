package action

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/taskbot/internal/domain"
	"github.com/gosuda/taskbot/internal/intent"
	"github.com/gosuda/taskbot/internal/notify"
)

// Publisher queues notifications for asynchronous delivery.
type Publisher interface {
	Publish(ctx context.Context, ev notify.Event) error
}

// Deps are the collaborators the built-in handlers need.
type Deps struct {
	Directory domain.DirectoryRepository
	Tasks     domain.TaskRepository
	Notifier  Publisher
	Location  *time.Location
	Now       func() time.Time
}

// Handlers implements the built-in actions.
type Handlers struct {
	dir    domain.DirectoryRepository
	tasks  domain.TaskRepository
	notify Publisher
	loc    *time.Location
	now    func() time.Time
}

func NewHandlers(deps Deps) *Handlers {
	h := &Handlers{
		dir:    deps.Directory,
		tasks:  deps.Tasks,
		notify: deps.Notifier,
		loc:    deps.Location,
		now:    deps.Now,
	}
	if h.loc == nil {
		h.loc = time.UTC
	}
	if h.now == nil {
		h.now = time.Now
	}
	return h
}

// NewDefaultRegistry returns a registry holding every built-in handler.
func NewDefaultRegistry(deps Deps) *Registry {
	h := NewHandlers(deps)
	r := NewRegistry()
	r.Register(AssignTask, HandlerFunc(h.AssignTask))
	r.Register(UpdateTaskStatus, HandlerFunc(h.UpdateTaskStatus))
	r.Register(ViewOwnTasks, HandlerFunc(h.ViewOwnTasks))
	r.Register(ViewPerformance, HandlerFunc(h.ViewPerformance))
	r.Register(ViewTeam, HandlerFunc(h.ViewTeam))
	r.Register(AddUser, HandlerFunc(h.AddUser))
	r.Register(UpdateUser, HandlerFunc(h.UpdateUser))
	r.Register(DeleteUser, HandlerFunc(h.DeleteUser))
	return r
}

// --- Tasks ---

func (h *Handlers) AssignTask(ctx context.Context, req Request) (Result, error) {
	assignee := req.Target.Employee
	if assignee == nil {
		return Result{}, Reject("Who should I assign this task to?")
	}
	title := strings.TrimSpace(req.Params[intent.ParamTitle])
	if title == "" {
		return Result{}, Reject("What is the task? Please describe it briefly.")
	}

	if assignee.Phone != req.Sender.Phone {
		ok, err := domain.IsInSubtree(ctx, h.dir, req.Sender.Phone, assignee.Phone)
		if err != nil {
			return Result{}, fmt.Errorf("action.AssignTask: %w", err)
		}
		if !ok {
			return Result{}, Reject("You can only assign tasks to yourself or people in your team. %s is not in your team.", assignee.Name)
		}
	}

	var deadline *time.Time
	if raw := strings.TrimSpace(req.Params[intent.ParamDeadline]); raw != "" {
		d, err := parseDeadline(raw, h.loc)
		if err != nil {
			return Result{}, Reject("I couldn't understand the deadline %q. Please use a date like 2026-10-20.", raw)
		}
		deadline = &d
	}

	now := h.now()
	task := &domain.Task{
		ID:            uuid.New(),
		Title:         title,
		Description:   strings.TrimSpace(req.Params[intent.ParamDescription]),
		AssigneePhone: assignee.Phone,
		AssignerPhone: req.Sender.Phone,
		Status:        domain.TaskStatusPending,
		Deadline:      deadline,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if req.Attachment != nil {
		task.DocumentID = req.Attachment.ID
		task.DocumentName = req.Attachment.Filename
	}

	if err := h.tasks.Create(ctx, task); err != nil {
		return Result{}, fmt.Errorf("action.AssignTask: %w", err)
	}

	if assignee.Phone != req.Sender.Phone {
		text := fmt.Sprintf("New task from %s: %s", req.Sender.Name, title)
		if deadline != nil {
			text += " (due " + formatDeadline(*deadline, h.loc) + ")"
		}
		h.publish(ctx, notify.Event{Phone: assignee.Phone, Text: text, Document: req.Attachment})
	}

	reply := fmt.Sprintf("Task %q assigned to %s.", title, assignee.Name)
	if deadline != nil {
		reply += " Due " + formatDeadline(*deadline, h.loc) + "."
	}
	if req.Attachment != nil {
		reply += " The attached document was shared with them."
	}
	return Result{Reply: reply, Params: req.Params}, nil
}

func (h *Handlers) UpdateTaskStatus(ctx context.Context, req Request) (Result, error) {
	task := req.Target.Task
	if task == nil {
		return Result{}, Reject("Which task do you want to update?")
	}
	status, ok := domain.ParseTaskStatus(req.Params[intent.ParamStatus])
	if !ok {
		return Result{}, Reject("Status must be one of: pending, in progress, completed.")
	}
	if task.AssigneePhone != req.Sender.Phone {
		return Result{}, Reject("You can only update tasks assigned to you.")
	}
	if task.Status == status {
		return Result{Reply: fmt.Sprintf("%q is already %s.", task.Title, status.Label()), Params: req.Params}, nil
	}
	if !task.Status.ValidTransition(status) {
		return Result{}, Reject("%q can't move from %s to %s.", task.Title, task.Status.Label(), status.Label())
	}

	if err := h.tasks.UpdateStatus(ctx, task.ID, status); err != nil {
		return Result{}, fmt.Errorf("action.UpdateTaskStatus: %w", err)
	}

	if task.AssignerPhone != "" && task.AssignerPhone != req.Sender.Phone {
		h.publish(ctx, notify.Event{
			Phone:    task.AssignerPhone,
			Text:     fmt.Sprintf("%s marked %q as %s.", req.Sender.Name, task.Title, status.Label()),
			Document: req.Attachment,
		})
	}

	return Result{Reply: fmt.Sprintf("Updated %q to %s.", task.Title, status.Label()), Params: req.Params}, nil
}

func (h *Handlers) ViewOwnTasks(ctx context.Context, req Request) (Result, error) {
	tasks, err := h.tasks.ListByAssignee(ctx, req.Sender.Phone)
	if err != nil {
		return Result{}, fmt.Errorf("action.ViewOwnTasks: %w", err)
	}

	var b strings.Builder
	n := 0
	for _, t := range tasks {
		if !t.Status.Open() {
			continue
		}
		n++
		fmt.Fprintf(&b, "\n%d. %s [%s]", n, t.Title, t.Status.Label())
		if t.Deadline != nil {
			fmt.Fprintf(&b, " due %s", formatDeadline(*t.Deadline, h.loc))
		}
	}
	if n == 0 {
		return Result{Reply: "You have no pending tasks.", Params: req.Params}, nil
	}
	return Result{Reply: fmt.Sprintf("Your pending tasks (%d):%s", n, b.String()), Params: req.Params}, nil
}

type taskStats struct {
	pending, inProgress, completed int
}

func (s taskStats) total() int { return s.pending + s.inProgress + s.completed }

func (s taskStats) String() string {
	rate := 0
	if s.total() > 0 {
		rate = s.completed * 100 / s.total()
	}
	return fmt.Sprintf("%d pending, %d in progress, %d completed (%d%% complete)", s.pending, s.inProgress, s.completed, rate)
}

func (h *Handlers) stats(ctx context.Context, phone string) (taskStats, error) {
	tasks, err := h.tasks.ListByAssignee(ctx, phone)
	if err != nil {
		return taskStats{}, err
	}
	var s taskStats
	for _, t := range tasks {
		switch t.Status {
		case domain.TaskStatusPending:
			s.pending++
		case domain.TaskStatusInProgress:
			s.inProgress++
		case domain.TaskStatusCompleted:
			s.completed++
		}
	}
	return s, nil
}

func (h *Handlers) ViewPerformance(ctx context.Context, req Request) (Result, error) {
	if person := req.Target.Employee; person != nil {
		if person.Phone != req.Sender.Phone {
			ok, err := domain.IsInSubtree(ctx, h.dir, req.Sender.Phone, person.Phone)
			if err != nil {
				return Result{}, fmt.Errorf("action.ViewPerformance: %w", err)
			}
			if !ok {
				return Result{}, Reject("%s is not in your team.", person.Name)
			}
		}
		s, err := h.stats(ctx, person.Phone)
		if err != nil {
			return Result{}, fmt.Errorf("action.ViewPerformance: %w", err)
		}
		return Result{Reply: fmt.Sprintf("%s: %s", person.Name, s), Params: req.Params}, nil
	}

	team, err := domain.Subordinates(ctx, h.dir, req.Sender.Phone)
	if err != nil {
		return Result{}, fmt.Errorf("action.ViewPerformance: %w", err)
	}
	if len(team) == 0 {
		return Result{}, Reject("You don't have anyone reporting to you yet.")
	}

	var b strings.Builder
	b.WriteString("Team progress:")
	var all taskStats
	for _, e := range team {
		s, err := h.stats(ctx, e.Phone)
		if err != nil {
			return Result{}, fmt.Errorf("action.ViewPerformance: %w", err)
		}
		all.pending += s.pending
		all.inProgress += s.inProgress
		all.completed += s.completed
		fmt.Fprintf(&b, "\n- %s: %s", e.Name, s)
	}
	fmt.Fprintf(&b, "\nOverall: %s", all)
	return Result{Reply: b.String(), Params: req.Params}, nil
}

// --- Directory ---

func (h *Handlers) ViewTeam(ctx context.Context, req Request) (Result, error) {
	team, err := domain.Subordinates(ctx, h.dir, req.Sender.Phone)
	if err != nil {
		return Result{}, fmt.Errorf("action.ViewTeam: %w", err)
	}
	if len(team) == 0 {
		return Result{Reply: "No one reports to you yet.", Params: req.Params}, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Your team (%d):", len(team))
	for i, e := range team {
		fmt.Fprintf(&b, "\n%d. %s", i+1, e.Label())
	}
	return Result{Reply: b.String(), Params: req.Params}, nil
}

func (h *Handlers) AddUser(ctx context.Context, req Request) (Result, error) {
	name := strings.TrimSpace(req.Params[intent.ParamName])
	phone := strings.TrimSpace(req.Params[intent.ParamPhone])
	if name == "" || phone == "" {
		return Result{}, Reject("I need both a name and a phone number to add someone.")
	}

	manager := strings.TrimSpace(req.Params[intent.ParamManagerPhone])
	if manager == "" {
		manager = req.Sender.Phone
	}
	if manager != req.Sender.Phone {
		if _, err := h.dir.FindByPhoneOrEmail(ctx, manager); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return Result{}, Reject("I couldn't find a manager with phone %s.", manager)
			}
			return Result{}, fmt.Errorf("action.AddUser: %w", err)
		}
	}

	now := h.now()
	e := &domain.Employee{
		Name:         name,
		Phone:        phone,
		Email:        strings.TrimSpace(req.Params[intent.ParamEmail]),
		ManagerPhone: manager,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := h.dir.Create(ctx, e); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return Result{}, Reject("Someone with phone %s or that email already exists.", phone)
		}
		return Result{}, fmt.Errorf("action.AddUser: %w", err)
	}

	h.publish(ctx, notify.Event{Phone: phone, Text: fmt.Sprintf("Hi %s, %s added you to the team.", name, req.Sender.Name)})

	return Result{Reply: fmt.Sprintf("Added %s.", e.Label()), Params: req.Params}, nil
}

func (h *Handlers) UpdateUser(ctx context.Context, req Request) (Result, error) {
	existing := req.Target.Employee
	if existing == nil {
		return Result{}, Reject("Who should I update?")
	}

	updated := *existing
	var changes []string
	if email := strings.TrimSpace(req.Params[intent.ParamEmail]); email != "" && email != existing.Email {
		updated.Email = email
		changes = append(changes, "email "+email)
	}
	if manager := strings.TrimSpace(req.Params[intent.ParamManagerPhone]); manager != "" && manager != existing.ManagerPhone {
		updated.ManagerPhone = manager
		changes = append(changes, "manager "+manager)
	}
	if len(changes) == 0 {
		return Result{Reply: fmt.Sprintf("%s is already up to date.", existing.Name), Params: req.Params}, nil
	}

	updated.UpdatedAt = h.now()
	if err := h.dir.Update(ctx, &updated); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return Result{}, Reject("That email is already used by someone else.")
		}
		return Result{}, fmt.Errorf("action.UpdateUser: %w", err)
	}

	return Result{Reply: fmt.Sprintf("Updated %s: %s.", existing.Name, strings.Join(changes, ", ")), Params: req.Params}, nil
}

func (h *Handlers) DeleteUser(ctx context.Context, req Request) (Result, error) {
	target := req.Target.Employee
	if target == nil {
		return Result{}, Reject("Who should I remove?")
	}
	if target.Phone == req.Sender.Phone {
		return Result{}, Reject("You can't remove yourself.")
	}

	ok, err := domain.IsInSubtree(ctx, h.dir, req.Sender.Phone, target.Phone)
	if err != nil {
		return Result{}, fmt.Errorf("action.DeleteUser: %w", err)
	}
	if !ok {
		return Result{}, Reject("You can only remove people in your team. %s is not in your team.", target.Name)
	}

	if err := h.dir.Delete(ctx, target.Phone); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return Result{}, Reject("%s was already removed.", target.Name)
		}
		return Result{}, fmt.Errorf("action.DeleteUser: %w", err)
	}

	return Result{Reply: fmt.Sprintf("Removed %s.", target.Label()), Params: req.Params}, nil
}

// publish is best-effort: the action already happened.
func (h *Handlers) publish(ctx context.Context, ev notify.Event) {
	if h.notify == nil {
		return
	}
	if err := h.notify.Publish(ctx, ev); err != nil {
		log.Warn().Err(err).Str("phone", ev.Phone).Msg("notification publish failed")
	}
}

var deadlineLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

func parseDeadline(s string, loc *time.Location) (time.Time, error) {
	for _, layout := range deadlineLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised deadline %q", s)
}

func formatDeadline(t time.Time, loc *time.Location) string {
	t = t.In(loc)
	if t.Hour() == 0 && t.Minute() == 0 {
		return t.Format("Mon 2 Jan 2006")
	}
	return t.Format("Mon 2 Jan 2006 15:04")
}
