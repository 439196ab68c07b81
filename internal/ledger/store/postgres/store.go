// Package postgres implements the ledger store on PostgreSQL. The unique
// index on idempotency_key is the exactly-once fence; the balance row is the
// maintained accumulator updated in the same transaction as the insert.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/google/uuid"

	"tally/internal/ledger"
	id "tally/pkg/domain"
	"tally/pkg/platform/sentinel"
	txcontext "tally/pkg/platform/tx"
)

// uniqueViolation is the PostgreSQL error code for unique constraint hits.
const uniqueViolation = "23505"

// Store implements ledger.Store against PostgreSQL. When a transaction is
// present in the context (unit of work), statements run inside it.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type dbRunner interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) runner(ctx context.Context) dbRunner {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// EnsureSchema creates the ledger tables and indexes if absent.
func (s *Store) EnsureSchema(ctx context.Context) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS points_transactions (
			id              UUID PRIMARY KEY,
			user_id         UUID NOT NULL,
			action          TEXT NOT NULL,
			points          BIGINT NOT NULL,
			idempotency_key TEXT NOT NULL UNIQUE,
			metadata        JSONB,
			source          TEXT NOT NULL DEFAULT '',
			processed_at    TIMESTAMPTZ NOT NULL,
			created_at      TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_points_transactions_user ON points_transactions (user_id);
		CREATE INDEX IF NOT EXISTS idx_points_transactions_action ON points_transactions (action);

		CREATE TABLE IF NOT EXISTS point_balances (
			user_id      UUID PRIMARY KEY,
			total_points BIGINT NOT NULL DEFAULT 0,
			updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
		);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure ledger schema: %w", err)
	}
	return nil
}

func (s *Store) InsertTransaction(ctx context.Context, tx *ledger.PointsTransaction) error {
	metadata := tx.Metadata
	if len(metadata) == 0 {
		metadata = json.RawMessage(`{}`)
	}
	query := `
		INSERT INTO points_transactions (
			id, user_id, action, points, idempotency_key,
			metadata, source, processed_at, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.runner(ctx).ExecContext(ctx, query,
		uuid.UUID(tx.ID),
		uuid.UUID(tx.UserID),
		tx.Action.String(),
		tx.Points,
		tx.IdempotencyKey.String(),
		[]byte(metadata),
		tx.Source,
		tx.ProcessedAt,
		tx.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return sentinel.ErrDuplicateKey
		}
		return fmt.Errorf("insert points transaction: %w", err)
	}
	return nil
}

func (s *Store) GetByIdempotencyKey(ctx context.Context, key id.IdempotencyKey) (*ledger.PointsTransaction, error) {
	query := `
		SELECT id, user_id, action, points, idempotency_key,
		       metadata, source, processed_at, created_at
		FROM points_transactions
		WHERE idempotency_key = $1
	`
	row := s.runner(ctx).QueryRowContext(ctx, query, key.String())
	tx, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction by idempotency key: %w", err)
	}
	return tx, nil
}

func (s *Store) ApplyToBalance(ctx context.Context, userID id.UserID, delta int64) (int64, error) {
	query := `
		INSERT INTO point_balances (user_id, total_points, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (user_id) DO UPDATE SET
			total_points = point_balances.total_points + EXCLUDED.total_points,
			updated_at = now()
		RETURNING total_points
	`
	var total int64
	if err := s.runner(ctx).QueryRowContext(ctx, query, uuid.UUID(userID), delta).Scan(&total); err != nil {
		return 0, fmt.Errorf("apply balance delta: %w", err)
	}
	return total, nil
}

func (s *Store) GetBalance(ctx context.Context, userID id.UserID) (*ledger.Balance, error) {
	query := `
		SELECT user_id, total_points, updated_at
		FROM point_balances
		WHERE user_id = $1
	`
	var (
		uid uuid.UUID
		bal ledger.Balance
	)
	err := s.runner(ctx).QueryRowContext(ctx, query, uuid.UUID(userID)).Scan(&uid, &bal.TotalPoints, &bal.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get balance: %w", err)
	}
	bal.UserID = id.UserID(uid)
	return &bal, nil
}

func (s *Store) SumTransactions(ctx context.Context, userID id.UserID) (int64, error) {
	query := `
		SELECT COALESCE(SUM(points), 0)
		FROM points_transactions
		WHERE user_id = $1
	`
	var sum int64
	if err := s.runner(ctx).QueryRowContext(ctx, query, uuid.UUID(userID)).Scan(&sum); err != nil {
		return 0, fmt.Errorf("sum transactions: %w", err)
	}
	return sum, nil
}

func (s *Store) ListByUser(ctx context.Context, userID id.UserID, limit, offset int) ([]ledger.PointsTransaction, error) {
	query := `
		SELECT id, user_id, action, points, idempotency_key,
		       metadata, source, processed_at, created_at
		FROM points_transactions
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := s.runner(ctx).QueryContext(ctx, query, uuid.UUID(userID), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var txs []ledger.PointsTransaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		txs = append(txs, *tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return txs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*ledger.PointsTransaction, error) {
	var (
		txID     uuid.UUID
		userID   uuid.UUID
		action   string
		key      string
		metadata []byte
		tx       ledger.PointsTransaction
	)
	err := row.Scan(
		&txID,
		&userID,
		&action,
		&tx.Points,
		&key,
		&metadata,
		&tx.Source,
		&tx.ProcessedAt,
		&tx.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	tx.ID = id.TransactionID(txID)
	tx.UserID = id.UserID(userID)
	tx.Action = id.ActionType(action)
	tx.IdempotencyKey = id.IdempotencyKey(key)
	tx.Metadata = json.RawMessage(metadata)
	return &tx, nil
}
