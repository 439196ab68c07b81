// Package postgres implements the audit store. The purge deletes and writes
// its self-documenting entry inside one transaction so the trail never shows
// a purge without its record or vice versa.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"tally/internal/audit"
	id "tally/pkg/domain"
)

// Store implements audit.Store against PostgreSQL.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the audit table and its read-path indexes if absent.
func (s *Store) EnsureSchema(ctx context.Context) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS audit_log (
			id          UUID PRIMARY KEY,
			user_id     UUID,
			who         TEXT NOT NULL,
			what        TEXT NOT NULL,
			where_hash  TEXT NOT NULL DEFAULT '',
			how         TEXT NOT NULL DEFAULT '',
			details     JSONB,
			request_id  TEXT NOT NULL DEFAULT '',
			session_id  TEXT NOT NULL DEFAULT '',
			occurred_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_audit_log_user_occurred ON audit_log (user_id, occurred_at DESC);
		CREATE INDEX IF NOT EXISTS idx_audit_log_request ON audit_log (request_id);
		CREATE INDEX IF NOT EXISTS idx_audit_log_what ON audit_log (what);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure audit schema: %w", err)
	}
	return nil
}

const entryColumns = `id, user_id, who, what, where_hash, how, details, request_id, session_id, occurred_at`

func (s *Store) Append(ctx context.Context, entry audit.Entry) error {
	return appendEntry(ctx, s.db, entry)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func appendEntry(ctx context.Context, db execer, entry audit.Entry) error {
	details := entry.Details
	if len(details) == 0 {
		details = json.RawMessage(`{}`)
	}
	var userID *uuid.UUID
	if !entry.UserID.IsNil() {
		uid := uuid.UUID(entry.UserID)
		userID = &uid
	}
	query := `
		INSERT INTO audit_log (` + entryColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := db.ExecContext(ctx, query,
		uuid.UUID(entry.ID),
		userID,
		entry.Who,
		entry.What,
		entry.WhereHash,
		entry.How,
		[]byte(details),
		entry.RequestID,
		entry.SessionID,
		entry.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func (s *Store) ListByUser(ctx context.Context, filters audit.Filters) ([]audit.Entry, error) {
	return s.Search(ctx, filters)
}

func (s *Store) ListByRequestID(ctx context.Context, requestID string) ([]audit.Entry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM audit_log
		WHERE request_id = $1
		ORDER BY occurred_at ASC, id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, requestID)
	if err != nil {
		return nil, fmt.Errorf("query audit entries by request: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func (s *Store) Search(ctx context.Context, filters audit.Filters) ([]audit.Entry, error) {
	where, args := buildWhere(filters)
	query := `
		SELECT ` + entryColumns + `
		FROM audit_log
		` + where + `
		ORDER BY occurred_at DESC, id DESC
	`
	if filters.Limit > 0 {
		query += " LIMIT $" + strconv.Itoa(len(args)+1)
		args = append(args, filters.Limit)
	}
	if filters.Offset > 0 {
		query += " OFFSET $" + strconv.Itoa(len(args)+1)
		args = append(args, filters.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search audit entries: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func (s *Store) Count(ctx context.Context, filters audit.Filters) (int64, error) {
	where, args := buildWhere(filters)
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_log `+where, args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count audit entries: %w", err)
	}
	return n, nil
}

func (s *Store) PurgeOlderThan(ctx context.Context, cutoff time.Time, record audit.Entry) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	res, err := tx.ExecContext(ctx, `DELETE FROM audit_log WHERE occurred_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge audit entries: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge rows affected: %w", err)
	}

	if deleted > 0 {
		record.Details, _ = json.Marshal(map[string]any{
			"deleted_count": deleted,
			"cutoff":        cutoff.UTC().Format(time.RFC3339),
		})
		if err := appendEntry(ctx, tx, record); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return deleted, nil
}

func buildWhere(filters audit.Filters) (string, []any) {
	var clauses []string
	var args []any
	add := func(clause string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}

	if !filters.UserID.IsNil() {
		add("user_id = $%d", uuid.UUID(filters.UserID))
	}
	if filters.Who != "" {
		add("who = $%d", filters.Who)
	}
	if filters.What != "" {
		add("what = $%d", filters.What)
	}
	if filters.RequestID != "" {
		add("request_id = $%d", filters.RequestID)
	}
	if !filters.Since.IsZero() {
		add("occurred_at >= $%d", filters.Since)
	}
	if !filters.Until.IsZero() {
		add("occurred_at <= $%d", filters.Until)
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}

func scanEntries(rows *sql.Rows) ([]audit.Entry, error) {
	var entries []audit.Entry
	for rows.Next() {
		var (
			entryID uuid.UUID
			userID  *uuid.UUID
			details []byte
			entry   audit.Entry
		)
		err := rows.Scan(
			&entryID,
			&userID,
			&entry.Who,
			&entry.What,
			&entry.WhereHash,
			&entry.How,
			&details,
			&entry.RequestID,
			&entry.SessionID,
			&entry.OccurredAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entry.ID = id.EntryID(entryID)
		if userID != nil {
			entry.UserID = id.UserID(*userID)
		}
		entry.Details = json.RawMessage(details)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return entries, nil
}
