// Package audit provides the append-only administrative and security trail.
// Entries are immutable once written; the only sanctioned destruction is the
// retention purge, which documents itself with a new entry.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	id "tally/pkg/domain"
)

// Entry is one immutable record of a sensitive action.
type Entry struct {
	ID         id.EntryID
	UserID     id.UserID // nil UUID for system actions
	Who        string    // actor: user id, admin id, or "system"
	What       string    // action name, e.g. "points_awarded"
	WhereHash  string    // SHA-256 of the location, never the raw value
	How        string    // method/context, e.g. "api", "scheduler"
	Details    json.RawMessage
	RequestID  string
	SessionID  string
	OccurredAt time.Time
}

// Actor and action names used by the trail itself.
const (
	ActorSystem = "system"

	// ActionPurge documents a retention purge of this very trail. Written by
	// PurgeOlderThan whenever it deletes at least one entry.
	ActionPurge = "audit_log_purge"

	ActionPointsAwarded = "points_awarded"
)

// Filters narrows Search and Count. Zero values mean "any".
type Filters struct {
	UserID    id.UserID
	Who       string
	What      string
	RequestID string
	Since     time.Time
	Until     time.Time
	Limit     int
	Offset    int
}

// HashLocation hashes a raw location (IP, facility, URL path) for the
// where field. One-way: the trail must never hold raw locations.
func HashLocation(raw string) string {
	if raw == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
