// Package analytics is the de-identified behavioral event sink. Events pass
// three guards before storage: identity hashing (no reversible user IDs),
// PII scanning (no detected personal data), and schema validation.
package analytics

import (
	"encoding/json"
	"time"

	id "tally/pkg/domain"
)

// Event is one de-identified behavioral event. UserIDHash is the only link
// to a user and is a one-way HMAC, enabling cohort analysis without
// re-identification.
type Event struct {
	ID            id.EventID
	Name          string
	Category      string
	SchemaVersion int
	UserIDHash    string
	SessionID     string
	Metadata      json.RawMessage
	Context       json.RawMessage
	OccurredAt    time.Time
	Environment   string
}

// Event categories used by the built-in schemas.
const (
	CategoryLifecycle    = "lifecycle"
	CategoryEngagement   = "engagement"
	CategoryGamification = "gamification"
	CategoryUnknown      = "uncategorized"
)

// Event names tracked by the producers this core serves.
const (
	EventUserRegistered         = "user_registered"
	EventDocumentUploaded       = "document_uploaded"
	EventQuestionnaireSubmitted = "questionnaire_submitted"
	EventPointsAwarded          = "points_awarded"
	EventLevelUp                = "level_up"
)
