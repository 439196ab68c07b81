package audit

import (
	"context"
	"time"
)

// Store is the persistence boundary for the audit trail. Read paths must be
// backed by the (user_id, occurred_at), (request_id), and (what) indexes
// because the log grows unbounded between purges.
type Store interface {
	// Append writes one immutable entry.
	Append(ctx context.Context, entry Entry) error

	// ListByUser returns a user's entries most-recent-first, paginated
	// without overlap between pages.
	ListByUser(ctx context.Context, filters Filters) ([]Entry, error)

	// ListByRequestID returns entries ascending by occurrence, reconstructing
	// one request's lifecycle.
	ListByRequestID(ctx context.Context, requestID string) ([]Entry, error)

	// Search returns entries matching filters, most-recent-first.
	Search(ctx context.Context, filters Filters) ([]Entry, error)

	// Count returns how many entries match filters.
	Count(ctx context.Context, filters Filters) (int64, error)

	// PurgeOlderThan deletes entries strictly older than cutoff and, when at
	// least one row was deleted, atomically appends record (its Details are
	// completed with the deleted count by the store). Returns the number of
	// entries deleted, excluding the purge record itself.
	PurgeOlderThan(ctx context.Context, cutoff time.Time, record Entry) (int64, error)
}
