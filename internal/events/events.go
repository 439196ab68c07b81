// Package events carries domain events emitted by the points ledger and the
// fan-out machinery delivering them to subscribers (analytics, audit, Kafka).
//
// Delivery is decoupled from the ledger's write path: events are published
// post-commit onto a buffered channel and dispatched by a background loop, so
// a slow subscriber can never block or roll back a committed award.
package events

import (
	"time"

	id "tally/pkg/domain"
)

// Kind discriminates domain event types for subscription routing.
type Kind string

const (
	KindPointsEarned Kind = "points_earned"
	KindLevelUp      Kind = "level_up"
)

// Event is implemented by all domain events.
type Event interface {
	Kind() Kind
	Occurred() time.Time
}

// PointsEarned is emitted after a points transaction commits.
type PointsEarned struct {
	TransactionID id.TransactionID
	UserID        id.UserID
	Action        id.ActionType
	Points        int64
	TotalPoints   int64
	RequestID     string
	OccurredAt    time.Time
}

func (e PointsEarned) Kind() Kind          { return KindPointsEarned }
func (e PointsEarned) Occurred() time.Time { return e.OccurredAt }

// LevelUp is emitted when a committed award crosses a level threshold.
// It always follows the PointsEarned event for the same transaction.
type LevelUp struct {
	UserID      id.UserID
	Level       int
	TotalPoints int64
	OccurredAt  time.Time
}

func (e LevelUp) Kind() Kind          { return KindLevelUp }
func (e LevelUp) Occurred() time.Time { return e.OccurredAt }
