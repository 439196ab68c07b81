package audit

import (
	"context"
	"log/slog"
	"time"

	"tally/internal/audit/metrics"
	id "tally/pkg/domain"
	dErrors "tally/pkg/domain-errors"
)

// Trail is the audit service. Append is synchronous and fail-closed; use the
// Worker for fire-and-forget producers that must not block.
type Trail struct {
	store   Store
	logger  *slog.Logger
	metrics *metrics.Metrics
	clock   func() time.Time
}

// Option configures a Trail.
type Option func(*Trail)

// WithLogger sets the trail logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Trail) { t.logger = logger }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Metrics) Option {
	return func(t *Trail) { t.metrics = m }
}

// WithClock sets the clock function for testability.
func WithClock(clock func() time.Time) Option {
	return func(t *Trail) {
		if clock != nil {
			t.clock = clock
		}
	}
}

func NewTrail(store Store, opts ...Option) *Trail {
	t := &Trail{
		store: store,
		clock: time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.logger == nil {
		t.logger = slog.Default()
	}
	return t
}

// Append writes one entry, assigning ID and timestamp when absent.
// Who defaults to "system" for entries without a subject user.
func (t *Trail) Append(ctx context.Context, entry Entry) (id.EntryID, error) {
	if entry.What == "" {
		return id.EntryID{}, dErrors.New(dErrors.CodeValidation, "audit entry requires an action")
	}
	if entry.Who == "" {
		if !entry.UserID.IsNil() {
			return id.EntryID{}, dErrors.New(dErrors.CodeValidation, "audit entry for a user requires an actor")
		}
		entry.Who = ActorSystem
	}
	if uuidIsZero(entry.ID) {
		entry.ID = id.NewEntryID()
	}
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = t.clock()
	}

	if err := t.store.Append(ctx, entry); err != nil {
		return id.EntryID{}, dErrors.Wrap(err, dErrors.CodeStorageFailure, "audit append failed")
	}
	if t.metrics != nil {
		t.metrics.AppendsTotal.WithLabelValues(entry.What).Inc()
	}
	return entry.ID, nil
}

const (
	defaultPageLimit = 50
	maxPageLimit     = 1000
)

// GetByUser returns a user's entries most-recent-first without overlap
// between pages.
func (t *Trail) GetByUser(ctx context.Context, userID id.UserID, limit, offset int) ([]Entry, error) {
	if userID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "user id cannot be nil")
	}
	if offset < 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "offset cannot be negative")
	}
	return t.store.ListByUser(ctx, Filters{
		UserID: userID,
		Limit:  clampLimit(limit),
		Offset: offset,
	})
}

// GetByAction returns entries for one action name, most-recent-first.
func (t *Trail) GetByAction(ctx context.Context, what string) ([]Entry, error) {
	if what == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "action cannot be empty")
	}
	return t.store.Search(ctx, Filters{What: what, Limit: maxPageLimit})
}

// GetByTimeRange returns entries with start <= occurred_at <= end,
// most-recent-first.
func (t *Trail) GetByTimeRange(ctx context.Context, start, end time.Time) ([]Entry, error) {
	if end.Before(start) {
		return nil, dErrors.New(dErrors.CodeValidation, "end precedes start")
	}
	return t.store.Search(ctx, Filters{Since: start, Until: end, Limit: maxPageLimit})
}

// GetByRequestID reconstructs one request's lifecycle in ascending
// chronological order.
func (t *Trail) GetByRequestID(ctx context.Context, requestID string) ([]Entry, error) {
	if requestID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "request id cannot be empty")
	}
	return t.store.ListByRequestID(ctx, requestID)
}

// Search returns entries matching filters, most-recent-first.
func (t *Trail) Search(ctx context.Context, filters Filters) ([]Entry, error) {
	filters.Limit = clampLimit(filters.Limit)
	return t.store.Search(ctx, filters)
}

// Count returns how many entries match filters.
func (t *Trail) Count(ctx context.Context, filters Filters) (int64, error) {
	return t.store.Count(ctx, filters)
}

// PurgeOlderThan deletes entries strictly older than cutoff. Entries at the
// boundary are kept. Any purge that deletes at least one entry writes
// exactly one new entry documenting itself (what=audit_log_purge,
// who=system), atomically with the deletion.
func (t *Trail) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	record := Entry{
		ID:         id.NewEntryID(),
		Who:        ActorSystem,
		What:       ActionPurge,
		How:        "scheduler",
		OccurredAt: t.clock(),
	}
	deleted, err := t.store.PurgeOlderThan(ctx, cutoff, record)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeStorageFailure, "audit purge failed")
	}
	if t.metrics != nil {
		t.metrics.PurgedTotal.Add(float64(deleted))
	}
	if deleted > 0 {
		t.logger.Info("audit retention purge completed", "deleted", deleted, "cutoff", cutoff)
	}
	return deleted, nil
}

// CountOlderThan reports how many entries a purge at cutoff would delete.
// Used by retention dry runs; mutates nothing.
func (t *Trail) CountOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return t.store.Count(ctx, Filters{Until: cutoff.Add(-time.Nanosecond)})
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultPageLimit
	}
	if limit > maxPageLimit {
		return maxPageLimit
	}
	return limit
}

func uuidIsZero(e id.EntryID) bool {
	return e == id.EntryID{}
}
