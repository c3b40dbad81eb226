package sync

import "errors"

// Sentinel errors for the sync engine.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrValidation indicates malformed input, such as an external record
	// missing its identifier.
	ErrValidation = errors.New("sync: validation failed")

	// ErrConflict indicates irreconcilable state: an identifier collision
	// against an already-external record. This is a uniqueness-invariant
	// breach and is never retried.
	ErrConflict = errors.New("sync: identity conflict")

	// ErrConstraint indicates an operation would create a duplicate
	// external or local identifier.
	ErrConstraint = errors.New("sync: constraint violation")

	// ErrConnectivity indicates the snapshot source is unreachable.
	// Fatal for a full run; the pass aborts with zero progress.
	ErrConnectivity = errors.New("sync: snapshot source unreachable")

	// ErrNotFound indicates an operation targets a nonexistent record.
	ErrNotFound = errors.New("sync: record not found")

	// ErrDuplicateEntity is returned by the strict duplicate check when a
	// high-confidence duplicate exists.
	ErrDuplicateEntity = errors.New("sync: duplicate entity")
)
