package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const dedupTTL = 24 * time.Hour

// DedupChecker provides tap idempotency backed by Redis. A dispenser that
// retries an upload sends the same card, dispenser and timestamp again.
// Key format: tap:<card_guid>:<dispenser_id>:<unix_timestamp>
type DedupChecker struct {
	client redis.Cmdable
}

// NewDedupChecker creates a DedupChecker wrapping the given Redis client.
func NewDedupChecker(client redis.Cmdable) *DedupChecker {
	return &DedupChecker{client: client}
}

// IsDuplicate reports whether this exact tap has already been processed.
func (d *DedupChecker) IsDuplicate(ctx context.Context, cardGUID, dispenserID string, ts time.Time) (bool, error) {
	n, err := d.client.Exists(ctx, dedupKey(cardGUID, dispenserID, ts)).Result()
	if err != nil {
		return false, fmt.Errorf("dedup check: %w", err)
	}
	return n > 0, nil
}

// Mark records that this tap has been processed (expires after dedupTTL).
func (d *DedupChecker) Mark(ctx context.Context, cardGUID, dispenserID string, ts time.Time) error {
	return d.client.Set(ctx, dedupKey(cardGUID, dispenserID, ts), "1", dedupTTL).Err()
}

func dedupKey(cardGUID, dispenserID string, ts time.Time) string {
	return fmt.Sprintf("tap:%s:%s:%d", cardGUID, dispenserID, ts.Unix())
}
