package postgres

import (
	"context"
	"database/sql"
	"time"

	"tally/internal/ledger"
	id "tally/pkg/domain"
	dErrors "tally/pkg/domain-errors"
	txcontext "tally/pkg/platform/tx"
)

const defaultTxTimeout = 5 * time.Second

// UnitOfWork runs ledger mutations inside a SQL transaction. Per-user mutual
// exclusion comes from the database itself: the balance upsert takes a row
// lock, so concurrent awards for one user serialize at the storage layer.
type UnitOfWork struct {
	db      *sql.DB
	store   *Store
	timeout time.Duration
}

func NewUnitOfWork(db *sql.DB, store *Store) *UnitOfWork {
	return &UnitOfWork{db: db, store: store}
}

func (u *UnitOfWork) RunInTx(ctx context.Context, _ id.UserID, fn func(ledger.Store) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := u.timeout
	if timeout == 0 {
		timeout = defaultTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	tx, err := u.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(txStore{store: u.store, ctx: txcontext.WithTx(ctx, tx)}); err != nil {
		return err
	}
	return tx.Commit()
}

// txStore pins the transaction-carrying context so every store call inside
// the unit of work runs on the same *sql.Tx regardless of the caller's ctx.
type txStore struct {
	store *Store
	ctx   context.Context
}

func (t txStore) InsertTransaction(_ context.Context, tx *ledger.PointsTransaction) error {
	return t.store.InsertTransaction(t.ctx, tx)
}

func (t txStore) GetByIdempotencyKey(_ context.Context, key id.IdempotencyKey) (*ledger.PointsTransaction, error) {
	return t.store.GetByIdempotencyKey(t.ctx, key)
}

func (t txStore) ApplyToBalance(_ context.Context, userID id.UserID, delta int64) (int64, error) {
	return t.store.ApplyToBalance(t.ctx, userID, delta)
}

func (t txStore) GetBalance(_ context.Context, userID id.UserID) (*ledger.Balance, error) {
	return t.store.GetBalance(t.ctx, userID)
}

func (t txStore) SumTransactions(_ context.Context, userID id.UserID) (int64, error) {
	return t.store.SumTransactions(t.ctx, userID)
}

func (t txStore) ListByUser(_ context.Context, userID id.UserID, limit, offset int) ([]ledger.PointsTransaction, error) {
	return t.store.ListByUser(t.ctx, userID, limit, offset)
}
