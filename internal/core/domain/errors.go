package domain

import "errors"

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested document or attachment does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a write carried a stale revision.
	// Upsert recovers from this internally; it surfaces only when the
	// retry budget is exhausted.
	ErrConflict = errors.New("revision conflict")

	// ErrNotConfigured indicates a database name missing from the
	// configuration table.
	ErrNotConfigured = errors.New("database not configured")

	// ErrDenied indicates the remote rejected a write or session.
	// The sync session stays alive; permissions may change.
	ErrDenied = errors.New("access denied by remote")

	// ErrUnreachable indicates the remote peer could not be reached.
	ErrUnreachable = errors.New("remote unreachable")

	// ErrClosed indicates an operation on a closed store.
	ErrClosed = errors.New("store closed")
)
