// Package domain defines typed identifiers shared across the ledger core.
//
// IDs are distinct types over uuid.UUID so the compiler rejects cross-type
// assignment. Construct them via the Parse functions at trust boundaries;
// direct casting bypasses validation.
package domain

import (
	"github.com/google/uuid"

	dErrors "tally/pkg/domain-errors"
)

// UserID identifies the user a transaction, audit entry, or event belongs to.
type UserID uuid.UUID

// NilUserID is the zero UserID, used for system actions with no subject user.
var NilUserID = UserID(uuid.Nil)

// NewUserID returns a random UserID. Production user IDs arrive through
// ParseUserID; this is for fixtures and system-generated subjects.
func NewUserID() UserID { return UserID(uuid.New()) }

// ParseUserID constructs a UserID from external input.
//
// Errors: CodeValidation when the value is empty, malformed, or the nil UUID.
func ParseUserID(s string) (UserID, error) {
	u, err := parseID(s, "user id")
	return UserID(u), err
}

func (id UserID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id UserID) String() string { return uuid.UUID(id).String() }

// MarshalText renders the canonical UUID string so JSON payloads carry
// "xxxxxxxx-..." instead of a byte array.
func (id UserID) MarshalText() ([]byte, error)  { return uuid.UUID(id).MarshalText() }
func (id *UserID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }

// TransactionID identifies one durable points transaction.
type TransactionID uuid.UUID

// NewTransactionID returns a random TransactionID.
func NewTransactionID() TransactionID { return TransactionID(uuid.New()) }

func (id TransactionID) String() string { return uuid.UUID(id).String() }

func (id TransactionID) MarshalText() ([]byte, error)  { return uuid.UUID(id).MarshalText() }
func (id *TransactionID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }

// EntryID identifies one audit log entry.
type EntryID uuid.UUID

// NewEntryID returns a random EntryID.
func NewEntryID() EntryID { return EntryID(uuid.New()) }

func (id EntryID) String() string { return uuid.UUID(id).String() }

func (id EntryID) MarshalText() ([]byte, error)  { return uuid.UUID(id).MarshalText() }
func (id *EntryID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }

// EventID identifies one analytics event.
type EventID uuid.UUID

// NewEventID returns a random EventID.
func NewEventID() EventID { return EventID(uuid.New()) }

func (id EventID) String() string { return uuid.UUID(id).String() }

func (id EventID) MarshalText() ([]byte, error)  { return uuid.UUID(id).MarshalText() }
func (id *EventID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }

// maxIDLength bounds inputs before UUID parsing to reject oversized payloads
// cheaply at the trust boundary.
const maxIDLength = 64

func parseID(s, what string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.Newf(dErrors.CodeValidation, "%s cannot be empty", what)
	}
	if len(s) > maxIDLength {
		return uuid.Nil, dErrors.Newf(dErrors.CodeValidation, "%s too long", what)
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeValidation, "invalid %s", what)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeValidation, "%s cannot be nil", what)
	}
	return u, nil
}
