package entity

import "errors"

// Domain errors for the entity package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, entity.ErrEntityNotFound) {
//	    // handle not found case
//	}
var (
	// ErrEntityNotFound is returned when a lookup targets a nonexistent record.
	ErrEntityNotFound = errors.New("entity: not found")

	// ErrEntityExists is returned when creating an entity whose ID already exists.
	ErrEntityExists = errors.New("entity: already exists")

	// ErrLocalIDTaken is returned when a local identifier is already in use
	// by another record.
	ErrLocalIDTaken = errors.New("entity: local id already in use")

	// ErrExternalIDTaken is returned when a non-nil external identifier is
	// already linked to another record. This is a uniqueness-invariant breach
	// and must never be resolved by silent overwrite.
	ErrExternalIDTaken = errors.New("entity: external id already linked")

	// ErrInvalidEntity is returned when entity validation fails.
	ErrInvalidEntity = errors.New("entity: invalid")

	// ErrInvalidSource is returned when a source value is not recognised.
	ErrInvalidSource = errors.New("entity: invalid source")

	// ErrInvalidTransition is returned when a source transition is not legal.
	ErrInvalidTransition = errors.New("entity: illegal source transition")

	// ErrInvalidExternalID is returned when an external identifier is not of
	// the form "<domain>.<object>".
	ErrInvalidExternalID = errors.New("entity: invalid external id")

	// ErrInvalidName is returned when an entity name is empty or too long.
	ErrInvalidName = errors.New("entity: invalid name")

	// ErrInvariant is returned when a record violates the source/external-id
	// invariant: ExternalID is non-nil iff Source is external or hybrid.
	ErrInvariant = errors.New("entity: source/external-id invariant violated")
)
