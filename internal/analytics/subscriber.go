package analytics

import (
	"context"
	"log/slog"

	"tally/internal/events"
)

// Tracker bridges the in-process event bus into the analytics sink. It is a
// fire-and-forget consumer: a failed or dropped track never surfaces to the
// producing write path.
type Tracker struct {
	svc    *Service
	logger *slog.Logger
}

func NewTracker(svc *Service, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{svc: svc, logger: logger}
}

func (t *Tracker) Name() string { return "analytics" }

func (t *Tracker) Handle(ctx context.Context, ev events.Event) error {
	switch e := ev.(type) {
	case events.PointsEarned:
		_, err := t.svc.Track(ctx, EventPointsAwarded,
			map[string]any{
				"action": string(e.Action),
				"points": e.Points,
			},
			map[string]any{
				"request_id": e.RequestID,
			},
			e.UserID.String(), "")
		return err
	case events.LevelUp:
		_, err := t.svc.Track(ctx, EventLevelUp,
			map[string]any{
				"level": e.Level,
			},
			nil,
			e.UserID.String(), "")
		return err
	default:
		return nil
	}
}
