package audit

import (
	"context"
	"log/slog"

	"tally/internal/audit/metrics"
)

// Worker consumes entries from a channel and persists them through the
// trail. It decouples fire-and-forget producers from storage latency; a
// producer that must fail closed should call Trail.Append directly instead.
type Worker struct {
	trail   *Trail
	inbox   chan Entry
	logger  *slog.Logger
	metrics *metrics.Metrics
}

const defaultInbox = 1024

// NewWorker builds a worker with its own bounded inbox.
func NewWorker(trail *Trail, logger *slog.Logger, m *metrics.Metrics) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		trail:   trail,
		inbox:   make(chan Entry, defaultInbox),
		logger:  logger,
		metrics: m,
	}
}

// Enqueue submits an entry without blocking. When the inbox is full the
// entry is dropped and counted; audit-critical callers use Trail.Append.
func (w *Worker) Enqueue(entry Entry) {
	select {
	case w.inbox <- entry:
	default:
		if w.metrics != nil {
			w.metrics.WorkerDropped.Inc()
		}
		w.logger.Warn("audit inbox full, dropping entry", "what", entry.What)
	}
}

// Run persists entries until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case entry := <-w.inbox:
			if _, err := w.trail.Append(ctx, entry); err != nil {
				w.logger.Error("async audit append failed", "what", entry.What, "error", err)
			}
		}
	}
}
