package domain

import (
	"context"
	"time"
)

// MessengerLink binds an account on a chat platform to a directory entry.
type MessengerLink struct {
	Platform   string    `json:"platform"` // "slack", "telegram"
	ExternalID string    `json:"external_id"`
	Phone      string    `json:"phone"`
	CreatedAt  time.Time `json:"created_at"`
}

type MessengerLinkRepository interface {
	// CreateMessengerLink inserts or replaces the link for (platform, external id).
	CreateMessengerLink(ctx context.Context, link *MessengerLink) error
	GetMessengerLink(ctx context.Context, platform, externalID string) (*MessengerLink, error)
	ListMessengerLinks(ctx context.Context, phone string) ([]*MessengerLink, error)
}
