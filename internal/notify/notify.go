package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gosuda/taskbot/internal/domain"
)

// Event is a notification for one employee, addressed by directory phone.
type Event struct {
	Phone    string             `json:"phone"`
	Text     string             `json:"text"`
	Document *domain.Attachment `json:"document,omitempty"`
}

// PubSub is the transport carrying events between publishers and the worker.
type PubSub interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, func(), error)
}

// Bus publishes events onto a pub/sub channel for asynchronous delivery.
type Bus struct {
	ps      PubSub
	channel string
}

func NewBus(ps PubSub, channel string) *Bus {
	return &Bus{ps: ps, channel: channel}
}

func (b *Bus) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("notify.Bus.Publish: marshal: %w", err)
	}
	if err := b.ps.Publish(ctx, b.channel, payload); err != nil {
		return fmt.Errorf("notify.Bus.Publish: %w", err)
	}
	return nil
}
