package domain

import dErrors "tally/pkg/domain-errors"

// ActionType names the producer action that earned (or deducted) points.
// Invariant: non-empty, lowercase snake_case, bounded length.
//
// The set is open: producers register new actions without a code change here,
// so validation enforces shape rather than an allowlist.
type ActionType string

// Actions emitted by the producers this core currently serves.
const (
	ActionUserRegistered         ActionType = "user_registered"
	ActionDocumentUploaded       ActionType = "document_uploaded"
	ActionQuestionnaireSubmitted ActionType = "questionnaire_submitted"
	ActionProfileCompleted       ActionType = "profile_completed"
	ActionPointsAdjustment       ActionType = "points_adjustment"
)

const maxActionLength = 100

// ParseActionType constructs an ActionType from external input.
//
// Errors: CodeValidation when the value is empty, too long, or contains
// characters outside [a-z0-9_].
func ParseActionType(s string) (ActionType, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeValidation, "action cannot be empty")
	}
	if len(s) > maxActionLength {
		return "", dErrors.New(dErrors.CodeValidation, "action too long")
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '_' {
			continue
		}
		return "", dErrors.New(dErrors.CodeValidation, "action must be lowercase snake_case")
	}
	return ActionType(s), nil
}

func (a ActionType) String() string { return string(a) }

// IdempotencyKey is a caller-supplied token guaranteeing at-most-one durable
// effect per logical operation. Keys are opaque; uniqueness is global.
type IdempotencyKey string

const maxIdempotencyKeyLength = 255

// ParseIdempotencyKey constructs an IdempotencyKey from external input.
//
// Errors: CodeValidation when the value is empty or exceeds the storage bound.
func ParseIdempotencyKey(s string) (IdempotencyKey, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeValidation, "idempotency key cannot be empty")
	}
	if len(s) > maxIdempotencyKeyLength {
		return "", dErrors.New(dErrors.CodeValidation, "idempotency key too long")
	}
	return IdempotencyKey(s), nil
}

func (k IdempotencyKey) String() string { return string(k) }
