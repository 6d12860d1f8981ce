package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/taskbot/internal/domain"
	"github.com/gosuda/taskbot/internal/messenger"
)

// ErrPlatformNotFound is returned when a messenger platform is not registered.
var ErrPlatformNotFound = errors.New("notify: platform not found") //nolint:gochecknoglobals // sentinel error

// MessengerRegistry maps platform names to Messenger implementations.
type MessengerRegistry interface {
	Get(platform string) (messenger.Messenger, bool)
}

// LinkResolver finds the messenger accounts linked to an employee.
type LinkResolver interface {
	ListMessengerLinks(ctx context.Context, phone string) ([]*domain.MessengerLink, error)
}

// Notifier delivers events to employees through their linked messenger
// accounts, falling back to a platform addressed by phone.
type Notifier struct {
	messengers MessengerRegistry
	links      LinkResolver
	fallback   string
}

// New creates a Notifier. fallback names the platform used with the phone as
// address when an employee has no links; empty disables it.
func New(messengers MessengerRegistry, links LinkResolver, fallback string) *Notifier {
	return &Notifier{
		messengers: messengers,
		links:      links,
		fallback:   fallback,
	}
}

// Notify sends ev via the first linked account that accepts it. With no
// links and no usable fallback the event is logged and dropped.
func (n *Notifier) Notify(ctx context.Context, ev Event) error {
	links, err := n.links.ListMessengerLinks(ctx, ev.Phone)
	if err != nil {
		return fmt.Errorf("notify.Notifier.Notify: list links: %w", err)
	}

	if len(links) == 0 {
		if _, ok := n.messengers.Get(n.fallback); !ok {
			log.Info().Str("phone", ev.Phone).Str("text", ev.Text).Msg("notify: no messenger links, dropping notification")
			return nil
		}
		if err := n.NotifyVia(ctx, n.fallback, ev.Phone, ev); err != nil {
			return fmt.Errorf("notify.Notifier.Notify: fallback: %w", err)
		}
		return nil
	}

	// Try each link until one succeeds.
	var lastErr error
	for _, link := range links {
		sendErr := n.NotifyVia(ctx, link.Platform, link.ExternalID, ev)
		if sendErr == nil {
			return nil
		}
		lastErr = sendErr
	}

	return fmt.Errorf("notify.Notifier.Notify: all links failed: %w", lastErr)
}

// NotifyVia sends ev using a specific platform and address directly.
func (n *Notifier) NotifyVia(ctx context.Context, platform, to string, ev Event) error {
	msg, ok := n.messengers.Get(platform)
	if !ok {
		return fmt.Errorf("notify.Notifier.NotifyVia: platform %q: %w", platform, ErrPlatformNotFound)
	}

	if ev.Document != nil {
		if _, err := msg.SendDocument(ctx, to, *ev.Document, ev.Text); err != nil {
			return fmt.Errorf("notify.Notifier.NotifyVia: send document: %w", err)
		}
		return nil
	}

	if _, err := msg.SendMessage(ctx, to, ev.Text); err != nil {
		return fmt.Errorf("notify.Notifier.NotifyVia: send: %w", err)
	}

	return nil
}
