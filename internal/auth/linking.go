package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/taskbot/internal/domain"
)

// Linker maps chat platform accounts onto directory entries. A link is created
// the first time an account proves who it is: a Slack profile email, a shared
// Telegram contact.
type Linker struct {
	links domain.MessengerLinkRepository
	dir   domain.DirectoryReader
	now   func() time.Time
}

func NewLinker(links domain.MessengerLinkRepository, dir domain.DirectoryReader) *Linker {
	return &Linker{links: links, dir: dir, now: time.Now}
}

// Resolve returns the phone linked to the platform account. It returns
// domain.ErrNotFound when the account has never been linked.
func (l *Linker) Resolve(ctx context.Context, platform, externalID string) (string, error) {
	link, err := l.links.GetMessengerLink(ctx, platform, externalID)
	if err != nil {
		return "", fmt.Errorf("auth.Linker.Resolve: %w", err)
	}
	return link.Phone, nil
}

// Link binds the platform account to the employee identified by key, a phone
// number or email. Phone numbers are matched with and without a leading "+"
// since platforms disagree on the format. It returns domain.ErrNotFound when no
// employee matches.
func (l *Linker) Link(ctx context.Context, platform, externalID, key string) (*domain.Employee, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, fmt.Errorf("auth.Linker.Link: empty key: %w", domain.ErrNotFound)
	}

	var (
		emp *domain.Employee
		err error
	)
	for _, candidate := range keyVariants(key) {
		emp, err = l.dir.FindByPhoneOrEmail(ctx, candidate)
		if err == nil || !errors.Is(err, domain.ErrNotFound) {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("auth.Linker.Link: %w", err)
	}

	link := &domain.MessengerLink{
		Platform:   platform,
		ExternalID: externalID,
		Phone:      emp.Phone,
		CreatedAt:  l.now(),
	}
	if err := l.links.CreateMessengerLink(ctx, link); err != nil {
		return nil, fmt.Errorf("auth.Linker.Link: %w", err)
	}

	log.Info().Str("platform", platform).Str("external_id", externalID).Str("phone", emp.Phone).Msg("messenger account linked")
	return emp, nil
}

func keyVariants(key string) []string {
	if strings.Contains(key, "@") {
		return []string{key}
	}
	if trimmed, ok := strings.CutPrefix(key, "+"); ok {
		return []string{key, trimmed}
	}
	return []string{key, "+" + key}
}
