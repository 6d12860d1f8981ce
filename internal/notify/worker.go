package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"
)

// Worker consumes published events and delivers them with a Notifier.
type Worker struct {
	ps       PubSub
	channel  string
	notifier *Notifier
}

func NewWorker(ps PubSub, channel string, notifier *Notifier) *Worker {
	return &Worker{ps: ps, channel: channel, notifier: notifier}
}

// Run delivers events until ctx is cancelled or the subscription closes.
// Delivery failures are logged; they never stop the worker.
func (w *Worker) Run(ctx context.Context) error {
	events, cleanup, err := w.ps.Subscribe(ctx, w.channel)
	if err != nil {
		return fmt.Errorf("notify.Worker.Run: %w", err)
	}
	defer cleanup()

	log.Info().Str("channel", w.channel).Msg("notification worker started")

	for {
		select {
		case <-ctx.Done():
			return nil
		case payload, ok := <-events:
			if !ok {
				return nil
			}
			w.deliver(ctx, payload)
		}
	}
}

func (w *Worker) deliver(ctx context.Context, payload []byte) {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		log.Warn().Err(err).Msg("notify: undecodable event")
		return
	}
	if err := w.notifier.Notify(ctx, ev); err != nil {
		log.Error().Err(err).Str("phone", ev.Phone).Msg("notify: delivery failed")
	}
}
