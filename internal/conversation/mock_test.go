package conversation

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/taskbot/internal/action"
	"github.com/gosuda/taskbot/internal/domain"
	"github.com/gosuda/taskbot/internal/intent"
	"github.com/gosuda/taskbot/internal/llm"
	redisstore "github.com/gosuda/taskbot/internal/store/redis"
)

// --- Directory ---

type memDirectory struct {
	employees []*domain.Employee
}

func (d *memDirectory) FindByPhoneOrEmail(_ context.Context, key string) (*domain.Employee, error) {
	for _, e := range d.employees {
		if e.Phone == key || (e.Email != "" && e.Email == key) {
			cp := *e
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (d *memDirectory) FindDirectReports(_ context.Context, phone string) ([]*domain.Employee, error) {
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

func org() *memDirectory {
	return &memDirectory{employees: []*domain.Employee{
		{Name: "Asha", Phone: "100", ManagerPhone: "100"},
		{Name: "Vikram", Phone: "200", ManagerPhone: "100"},
		{Name: "Raj Kumar", Phone: "300", ManagerPhone: "200"},
		{Name: "Raj Patel", Phone: "301", ManagerPhone: "200"},
		{Name: "Neha Sharma", Phone: "400", Email: "neha.s@corp.com", ManagerPhone: "100"},
	}}
}

// --- Tasks ---

type memTasks struct {
	tasks []*domain.Task
}

func (m *memTasks) GetByID(_ context.Context, id uuid.UUID) (*domain.Task, error) {
	for _, t := range m.tasks {
		if t.ID == id {
			cp := *t
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memTasks) ListByAssignee(_ context.Context, phone string) ([]*domain.Task, error) {
	var out []*domain.Task
	for _, t := range m.tasks {
		if t.AssigneePhone == phone {
			out = append(out, t)
		}
	}
	return out, nil
}

// --- Intent collaborators ---

type classifyCall struct {
	text          string
	hasAttachment bool
}

type fakeClassifier struct {
	mu     sync.Mutex
	result intent.Classification
	calls  []classifyCall
}

func (f *fakeClassifier) Classify(_ context.Context, text string, hasAttachment bool) intent.Classification {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, classifyCall{text: text, hasAttachment: hasAttachment})
	return f.result
}

func (f *fakeClassifier) set(in intent.Intent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.result = intent.Classification{Supported: true, Intent: in, Confidence: 0.9}
}

type fakeExtractor struct {
	fn func(in intent.Intent, transcript string, known intent.Params) (intent.Params, error)
}

func (f *fakeExtractor) Extract(_ context.Context, in intent.Intent, transcript string, known intent.Params) (intent.Params, error) {
	if f.fn == nil {
		return known.Clone(), nil
	}
	return f.fn(in, transcript, known)
}

// returns makes the extractor merge fixed values over what is known.
func (f *fakeExtractor) returns(p intent.Params) {
	f.fn = func(_ intent.Intent, _ string, known intent.Params) (intent.Params, error) {
		return known.Merge(p), nil
	}
}

// fakeGuard resets by default. continueActive makes it continue whatever
// intent the history records.
type fakeGuard struct {
	fn func(history []domain.Message, text string) intent.Verdict
}

func (f *fakeGuard) Check(_ context.Context, _ string, history []domain.Message, text string) (intent.Verdict, error) {
	if f.fn == nil {
		return intent.Verdict{Decision: intent.Reset}, nil
	}
	return f.fn(history, text), nil
}

func (f *fakeGuard) continueActive() {
	f.fn = func(history []domain.Message, _ string) intent.Verdict {
		in, req, ok := intent.Active(history)
		if !ok {
			return intent.Verdict{Decision: intent.Reset}
		}
		return intent.Verdict{Decision: intent.Continue, Intent: in, Request: req}
	}
}

// fixedLLM answers every completion with the same text.
type fixedLLM struct {
	mu    sync.Mutex
	reply string
	calls int
}

func (f *fixedLLM) Complete(_ context.Context, _ llm.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.reply, nil
}

func (f *fixedLLM) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// --- Actions ---

type dispatchCall struct {
	kind action.Kind
	req  action.Request
}

type recordingDispatcher struct {
	mu    sync.Mutex
	calls []dispatchCall
	fn    func(kind action.Kind, req action.Request) (action.Result, error)
}

func (d *recordingDispatcher) Dispatch(_ context.Context, kind action.Kind, req action.Request) (action.Result, error) {
	d.mu.Lock()
	d.calls = append(d.calls, dispatchCall{kind: kind, req: req})
	fn := d.fn
	d.mu.Unlock()
	if fn != nil {
		return fn(kind, req)
	}
	return action.Result{Reply: "done: " + string(kind), Params: req.Params}, nil
}

func (d *recordingDispatcher) snapshot() []dispatchCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]dispatchCall(nil), d.calls...)
}

// --- Harness ---

const sender = "100"

type harness struct {
	engine     *Engine
	mr         *miniredis.Miniredis
	sessions   *redisstore.SessionStore
	dir        *memDirectory
	tasks      *memTasks
	classifier *fakeClassifier
	extractor  *fakeExtractor
	guard      *fakeGuard
	actions    *recordingDispatcher
	deps       Deps
	seq        int
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	mr := miniredis.RunT(t)
	client, err := redisstore.New(context.Background(), mr.Addr(), "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	h := &harness{
		mr:         mr,
		sessions:   redisstore.NewSessionStore(client),
		dir:        org(),
		tasks:      &memTasks{},
		classifier: &fakeClassifier{},
		extractor:  &fakeExtractor{},
		guard:      &fakeGuard{},
		actions:    &recordingDispatcher{},
	}
	h.deps = Deps{
		Sessions:   h.sessions,
		Dedup:      redisstore.NewDeduplicator(client, time.Hour),
		Directory:  h.dir,
		Tasks:      h.tasks,
		Classifier: h.classifier,
		Extractor:  h.extractor,
		Guard:      h.guard,
		Actions:    h.actions,
	}
	h.engine = NewEngine(h.deps)
	return h
}

// useGuard rebuilds the engine around g, such as the production guard.
func (h *harness) useGuard(g Guard) {
	h.deps.Guard = g
	h.engine = NewEngine(h.deps)
}

// send delivers text from the default sender under a fresh message id.
func (h *harness) send(t *testing.T, text string) Reply {
	t.Helper()
	h.seq++
	return h.engine.HandleInbound(context.Background(), Inbound{
		UserKey:   sender,
		Text:      text,
		MessageID: fmt.Sprintf("wamid.%d", h.seq),
	})
}

func (h *harness) sessionID(t *testing.T) (string, bool) {
	t.Helper()
	id, ok, err := h.sessions.ActiveSession(context.Background(), sender)
	require.NoError(t, err)
	return id, ok
}

func (h *harness) pendingRaw(t *testing.T) []byte {
	t.Helper()
	id, ok := h.sessionID(t)
	if !ok {
		return nil
	}
	raw, found, err := h.sessions.GetPending(context.Background(), id)
	require.NoError(t, err)
	if !found {
		return nil
	}
	return raw
}

func (h *harness) state(t *testing.T) State {
	t.Helper()
	raw := h.pendingRaw(t)
	if raw == nil {
		return StateFresh
	}
	p, err := DecodePending(raw)
	require.NoError(t, err)
	return StateOf(p)
}
