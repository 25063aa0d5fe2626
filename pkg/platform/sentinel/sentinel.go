package sentinel

import "errors"

// Sentinel errors for storage and infrastructure facts. Stores return these
// (optionally wrapped) and services translate them into domain errors:
//   - ErrNotFound: no row or key for the lookup
//   - ErrConflict: a uniqueness constraint was hit (username, role name, serial id)
//   - ErrAlreadyUsed: a single-use value was consumed (refresh token id)
//   - ErrInvalidState: a conditional update matched no row in the expected state
//   - ErrLocked: a claim lock is held by another request
//   - ErrExpired: session or token past its expiry
//   - ErrUnavailable: backing service temporarily unavailable
//
// For validation errors use pkg/domain-errors directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrExpired      = errors.New("expired")
	ErrAlreadyUsed  = errors.New("already used")
	ErrInvalidState = errors.New("invalid state")
	ErrLocked       = errors.New("locked")
	ErrUnavailable  = errors.New("unavailable")
)
