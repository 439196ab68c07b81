package audit

import (
	"context"
	"encoding/json"

	"tally/internal/events"
)

// Recorder is an event-bus subscriber that turns committed ledger events
// into audit entries via the async worker, keeping the ledger write path
// free of audit storage latency.
type Recorder struct {
	worker *Worker
}

func NewRecorder(worker *Worker) *Recorder {
	return &Recorder{worker: worker}
}

// Name implements events.Subscriber.
func (r *Recorder) Name() string { return "audit" }

// Handle implements events.Subscriber. Only points awards are audited;
// level-ups are derived state already reconstructable from the trail.
func (r *Recorder) Handle(_ context.Context, event events.Event) error {
	earned, ok := event.(events.PointsEarned)
	if !ok {
		return nil
	}
	details, err := json.Marshal(map[string]any{
		"transaction_id": earned.TransactionID.String(),
		"action":         earned.Action.String(),
		"points":         earned.Points,
		"total_points":   earned.TotalPoints,
	})
	if err != nil {
		return err
	}
	r.worker.Enqueue(Entry{
		UserID:     earned.UserID,
		Who:        earned.UserID.String(),
		What:       ActionPointsAwarded,
		How:        "ledger",
		Details:    details,
		RequestID:  earned.RequestID,
		OccurredAt: earned.OccurredAt,
	})
	return nil
}
