// Package postgres implements the analytics event store. Append-only with
// retention pruning; the table carries no raw identity columns.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"tally/internal/analytics"
	id "tally/pkg/domain"
)

// Store implements analytics.Store against PostgreSQL.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the analytics table and its query-path indexes if
// absent.
func (s *Store) EnsureSchema(ctx context.Context) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS analytics_events (
			id             UUID PRIMARY KEY,
			event_name     TEXT NOT NULL,
			category       TEXT NOT NULL DEFAULT '',
			schema_version INT NOT NULL DEFAULT 0,
			user_id_hash   TEXT NOT NULL DEFAULT '',
			session_id     TEXT NOT NULL DEFAULT '',
			metadata       JSONB,
			context        JSONB,
			occurred_at    TIMESTAMPTZ NOT NULL,
			environment    TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_analytics_events_name_occurred ON analytics_events (event_name, occurred_at DESC);
		CREATE INDEX IF NOT EXISTS idx_analytics_events_category_occurred ON analytics_events (category, occurred_at DESC);
		CREATE INDEX IF NOT EXISTS idx_analytics_events_user_hash ON analytics_events (user_id_hash, occurred_at DESC);
		CREATE INDEX IF NOT EXISTS idx_analytics_events_occurred ON analytics_events (occurred_at);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure analytics schema: %w", err)
	}
	return nil
}

const eventColumns = `id, event_name, category, schema_version, user_id_hash, session_id, metadata, context, occurred_at, environment`

func (s *Store) Insert(ctx context.Context, event analytics.Event) error {
	query := `
		INSERT INTO analytics_events (` + eventColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := s.db.ExecContext(ctx, query,
		uuid.UUID(event.ID),
		event.Name,
		event.Category,
		event.SchemaVersion,
		event.UserIDHash,
		event.SessionID,
		nullableJSON(event.Metadata),
		nullableJSON(event.Context),
		event.OccurredAt,
		event.Environment,
	)
	if err != nil {
		return fmt.Errorf("insert analytics event: %w", err)
	}
	return nil
}

func (s *Store) ListByUserHash(ctx context.Context, userIDHash string, limit int) ([]analytics.Event, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM analytics_events
		WHERE user_id_hash = $1
		ORDER BY occurred_at DESC
		LIMIT $2
	`
	rows, err := s.db.QueryContext(ctx, query, userIDHash, limit)
	if err != nil {
		return nil, fmt.Errorf("list analytics events: %w", err)
	}
	defer rows.Close()

	var out []analytics.Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, event)
	}
	return out, rows.Err()
}

func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM analytics_events WHERE occurred_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune analytics events: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) CountOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM analytics_events WHERE occurred_at < $1`, cutoff).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count analytics events: %w", err)
	}
	return count, nil
}

func scanEvent(rows *sql.Rows) (analytics.Event, error) {
	var (
		event    analytics.Event
		eventID  uuid.UUID
		metadata []byte
		context  []byte
	)
	err := rows.Scan(
		&eventID,
		&event.Name,
		&event.Category,
		&event.SchemaVersion,
		&event.UserIDHash,
		&event.SessionID,
		&metadata,
		&context,
		&event.OccurredAt,
		&event.Environment,
	)
	if err != nil {
		return analytics.Event{}, fmt.Errorf("scan analytics event: %w", err)
	}
	event.ID = id.EventID(eventID)
	event.Metadata = metadata
	event.Context = context
	return event, nil
}

func nullableJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return raw
}
