// Package dispatch runs inbound messages from async transports with bounded
// concurrency.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/gosuda/taskbot/internal/conversation"
)

// ErrHandlerPanicked is returned by Process when the handler panicked.
var ErrHandlerPanicked = errors.New("dispatch: handler panicked")

// InboundHandler turns one inbound message into a reply.
type InboundHandler interface {
	HandleInbound(ctx context.Context, in conversation.Inbound) conversation.Reply
}

// RespondFunc delivers a reply back to the platform the message came from.
type RespondFunc func(ctx context.Context, reply conversation.Reply)

// Dispatcher runs inbound messages with bounded concurrency. Each message is
// an independent unit of work; a slow model call for one user never blocks
// intake for another. Work is detached from the request context so a platform
// that hangs up early does not abort a half-applied turn.
type Dispatcher struct {
	handler InboundHandler
	sem     *semaphore.Weighted
	wg      sync.WaitGroup
}

func NewDispatcher(handler InboundHandler, maxConcurrent int64) *Dispatcher {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Dispatcher{
		handler: handler,
		sem:     semaphore.NewWeighted(maxConcurrent),
	}
}

// Submit processes in on its own goroutine and hands a non-empty reply to
// respond. It returns immediately.
func (d *Dispatcher) Submit(ctx context.Context, in conversation.Inbound, respond RespondFunc) {
	ctx = context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		reply, ok := d.run(ctx, in)
		if ok && deliverable(reply) && respond != nil {
			respond(ctx, reply)
		}
	}()
}

// Process runs in synchronously, still within the concurrency bound. Used by
// transports that answer in the HTTP response.
func (d *Dispatcher) Process(ctx context.Context, in conversation.Inbound) (conversation.Reply, error) {
	d.wg.Add(1)
	defer d.wg.Done()

	reply, ok := d.run(context.WithoutCancel(ctx), in)
	if !ok {
		return conversation.Reply{}, fmt.Errorf("dispatch.Dispatcher.Process: %w", ErrHandlerPanicked)
	}
	return reply, nil
}

// Wait blocks until every submitted message has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) run(ctx context.Context, in conversation.Inbound) (reply conversation.Reply, ok bool) {
	// The context is detached, so Acquire only returns once a slot frees up.
	if err := d.sem.Acquire(ctx, 1); err != nil {
		log.Error().Err(err).Str("user_key", in.UserKey).Msg("dispatch: acquire slot")
		return conversation.Reply{}, false
	}
	defer d.sem.Release(1)

	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("user_key", in.UserKey).
				Str("message_id", in.MessageID).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("dispatch: handler panicked")
			reply, ok = conversation.Reply{}, false
		}
	}()

	return d.handler.HandleInbound(ctx, in), true
}

func deliverable(r conversation.Reply) bool {
	return !r.Duplicate && (r.Text != "" || r.Document != nil)
}
