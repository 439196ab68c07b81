package analytics

import (
	"context"
	"time"
)

// Store is the persistence boundary for analytics events. Append-only plus
// retention pruning; no row is ever updated.
type Store interface {
	// Insert writes one event.
	Insert(ctx context.Context, event Event) error

	// ListByUserHash returns a cohort member's events most-recent-first.
	ListByUserHash(ctx context.Context, userIDHash string, limit int) ([]Event, error)

	// DeleteOlderThan removes events strictly older than cutoff and returns
	// the count. No self-audit: this store is not a trail of privileged
	// actions.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)

	// CountOlderThan reports how many events DeleteOlderThan would remove.
	CountOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
