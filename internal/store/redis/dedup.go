package redis

import (
	"context"
	"fmt"
	"time"
)

// DefaultDedupTTL is how long a message id is remembered.
const DefaultDedupTTL = 24 * time.Hour

// Deduplicator collapses repeated deliveries of the same inbound message.
type Deduplicator struct {
	client *Client
	ttl    time.Duration
}

func NewDeduplicator(client *Client, ttl time.Duration) *Deduplicator {
	if ttl <= 0 {
		ttl = DefaultDedupTTL
	}
	return &Deduplicator{client: client, ttl: ttl}
}

// Admit records messageID as seen and reports whether this call was the first
// to do so. The check and the write are one SET NX EX command, so concurrent
// callers racing on the same id see exactly one true. An empty id is always
// admitted.
func (d *Deduplicator) Admit(ctx context.Context, messageID string) (bool, error) {
	if messageID == "" {
		return true, nil
	}

	ok, err := d.client.rdb.SetNX(ctx, DedupKey(messageID), 1, d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis.Deduplicator.Admit: %w", err)
	}
	return ok, nil
}
