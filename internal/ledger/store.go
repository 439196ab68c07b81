package ledger

import (
	"context"

	id "tally/pkg/domain"
)

// Store is the persistence boundary for the points ledger. Implementations
// return sentinel errors (pkg/platform/sentinel); the service translates
// them into coded domain errors.
type Store interface {
	// InsertTransaction appends a new transaction row. Returns
	// sentinel.ErrDuplicateKey when the idempotency key already exists.
	InsertTransaction(ctx context.Context, tx *PointsTransaction) error

	// GetByIdempotencyKey returns the transaction previously committed for
	// key, or sentinel.ErrNotFound.
	GetByIdempotencyKey(ctx context.Context, key id.IdempotencyKey) (*PointsTransaction, error)

	// ApplyToBalance atomically adds delta to the user's maintained balance
	// (creating the row at delta if absent) and returns the new total.
	ApplyToBalance(ctx context.Context, userID id.UserID, delta int64) (int64, error)

	// GetBalance returns the maintained balance, or sentinel.ErrNotFound for
	// users with no transactions yet.
	GetBalance(ctx context.Context, userID id.UserID) (*Balance, error)

	// SumTransactions computes the on-demand aggregate over the transaction
	// log. Used by balance reconciliation as an integrity check.
	SumTransactions(ctx context.Context, userID id.UserID) (int64, error)

	// ListByUser returns the user's transactions most-recent-first.
	ListByUser(ctx context.Context, userID id.UserID, limit, offset int) ([]PointsTransaction, error)
}

// UnitOfWork runs fn atomically with respect to the given user's balance.
// The Postgres implementation wraps a SQL transaction; the in-memory one
// holds a per-user sharded lock. Either way, a failure inside fn leaves no
// partial state.
type UnitOfWork interface {
	RunInTx(ctx context.Context, userID id.UserID, fn func(Store) error) error
}
