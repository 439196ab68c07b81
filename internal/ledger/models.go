package ledger

import (
	"encoding/json"
	"time"

	id "tally/pkg/domain"
)

// PointsTransaction is one durable point award. Rows are created once per
// successful award and never mutated or deleted under normal operation; a
// user's balance equals the sum of points across all their transactions.
type PointsTransaction struct {
	ID             id.TransactionID
	UserID         id.UserID
	Action         id.ActionType
	Points         int64
	IdempotencyKey id.IdempotencyKey
	Metadata       json.RawMessage
	Source         string
	ProcessedAt    time.Time
	CreatedAt      time.Time
}

// AwardStatus is the terminal outcome of an award attempt.
type AwardStatus string

const (
	// StatusApplied means a new transaction row was committed.
	StatusApplied AwardStatus = "applied"

	// StatusDuplicate means the idempotency key was already applied; the
	// prior result is returned. This is a successful no-op, not an error.
	StatusDuplicate AwardStatus = "duplicate"

	// StatusRejected means validation failed before any write.
	StatusRejected AwardStatus = "rejected"
)

// AwardRequest carries one logical award. IdempotencyKey must be unique per
// logical action; Points may be negative for deductions.
type AwardRequest struct {
	UserID         id.UserID
	Action         id.ActionType
	Points         int64
	IdempotencyKey id.IdempotencyKey
	Metadata       json.RawMessage
	Source         string
	RequestID      string
}

// AwardResult reports the outcome of an award attempt to the caller.
type AwardResult struct {
	Status       AwardStatus
	TotalPoints  int64
	PointsEarned int64
	Level        int
	Message      string
}

// Balance is the maintained per-user accumulator, updated in the same unit
// of work as the transaction insert. Level is derived from TotalPoints by
// the service's level table, not stored.
type Balance struct {
	UserID      id.UserID
	TotalPoints int64
	Level       int
	UpdatedAt   time.Time
}
