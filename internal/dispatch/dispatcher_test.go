package dispatch_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/gosuda/taskbot/internal/conversation"
	"github.com/gosuda/taskbot/internal/dispatch"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type handlerFunc func(ctx context.Context, in conversation.Inbound) conversation.Reply

func (f handlerFunc) HandleInbound(ctx context.Context, in conversation.Inbound) conversation.Reply {
	return f(ctx, in)
}

func echo() handlerFunc {
	return func(_ context.Context, in conversation.Inbound) conversation.Reply {
		return conversation.Reply{Text: "echo: " + in.Text}
	}
}

func TestDispatcher_SubmitDeliversReply(t *testing.T) {
	t.Parallel()

	d := dispatch.NewDispatcher(echo(), 4)

	var (
		mu      sync.Mutex
		replies []string
	)
	for _, text := range []string{"a", "b", "c"} {
		d.Submit(context.Background(), conversation.Inbound{Text: text}, func(_ context.Context, r conversation.Reply) {
			mu.Lock()
			replies = append(replies, r.Text)
			mu.Unlock()
		})
	}
	d.Wait()

	assert.ElementsMatch(t, []string{"echo: a", "echo: b", "echo: c"}, replies)
}

func TestDispatcher_BoundsConcurrency(t *testing.T) {
	t.Parallel()

	var inFlight, peak atomic.Int64
	release := make(chan struct{})
	h := handlerFunc(func(context.Context, conversation.Inbound) conversation.Reply {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		<-release
		inFlight.Add(-1)
		return conversation.Reply{}
	})

	d := dispatch.NewDispatcher(h, 2)
	for range 6 {
		d.Submit(context.Background(), conversation.Inbound{}, nil)
	}

	require.Eventually(t, func() bool { return inFlight.Load() == 2 }, time.Second, 5*time.Millisecond)
	close(release)
	d.Wait()

	assert.Equal(t, int64(2), peak.Load())
}

func TestDispatcher_DetachesFromCallerContext(t *testing.T) {
	t.Parallel()

	var sawCancel atomic.Bool
	h := handlerFunc(func(ctx context.Context, _ conversation.Inbound) conversation.Reply {
		time.Sleep(10 * time.Millisecond)
		sawCancel.Store(ctx.Err() != nil)
		return conversation.Reply{Text: "done"}
	})

	d := dispatch.NewDispatcher(h, 1)
	ctx, cancel := context.WithCancel(context.Background())

	var got atomic.Value
	d.Submit(ctx, conversation.Inbound{}, func(_ context.Context, r conversation.Reply) { got.Store(r.Text) })
	cancel()
	d.Wait()

	assert.False(t, sawCancel.Load())
	assert.Equal(t, "done", got.Load())
}

func TestDispatcher_SkipsEmptyAndDuplicateReplies(t *testing.T) {
	t.Parallel()

	replies := []conversation.Reply{{}, {Duplicate: true}, {Text: "x", Duplicate: true}}
	for _, r := range replies {
		d := dispatch.NewDispatcher(handlerFunc(func(context.Context, conversation.Inbound) conversation.Reply { return r }), 1)
		var called atomic.Bool
		d.Submit(context.Background(), conversation.Inbound{}, func(context.Context, conversation.Reply) { called.Store(true) })
		d.Wait()
		assert.False(t, called.Load(), "%+v", r)
	}
}

func TestDispatcher_RecoversPanics(t *testing.T) {
	t.Parallel()

	h := handlerFunc(func(_ context.Context, in conversation.Inbound) conversation.Reply {
		if in.Text == "boom" {
			panic("boom")
		}
		return conversation.Reply{Text: "ok"}
	})
	d := dispatch.NewDispatcher(h, 1)

	_, err := d.Process(context.Background(), conversation.Inbound{Text: "boom"})
	require.ErrorIs(t, err, dispatch.ErrHandlerPanicked)

	reply, err := d.Process(context.Background(), conversation.Inbound{Text: "fine"})
	require.NoError(t, err)
	assert.Equal(t, "ok", reply.Text, "the slot is released after a panic")
}
