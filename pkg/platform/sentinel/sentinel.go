package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) so services can translate them into coded domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: row does not exist in store
// - ErrDuplicateKey: unique constraint hit (e.g. idempotency key already used)
// - ErrLockHeld: a named lock is held by another owner
// - ErrUnavailable: backing store temporarily unavailable
var (
	ErrNotFound     = errors.New("not found")
	ErrDuplicateKey = errors.New("duplicate key")
	ErrLockHeld     = errors.New("lock held")
	ErrUnavailable  = errors.New("unavailable")
)
