package entity

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Validation limits.
const (
	maxNameLength    = 128
	maxLocalIDLength = 255
)

// ValidateEntity checks an entity for structural validity and enforces the
// registry invariants that must hold after every operation.
func ValidateEntity(e *Entity) error {
	if e == nil {
		return fmt.Errorf("%w: nil entity", ErrInvalidEntity)
	}
	if err := ValidateName(e.Name); err != nil {
		return err
	}
	if e.LocalID == "" || len(e.LocalID) > maxLocalIDLength {
		return fmt.Errorf("%w: local id must be 1-%d characters", ErrInvalidEntity, maxLocalIDLength)
	}
	if !e.Source.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidSource, e.Source)
	}
	if err := CheckInvariants(e); err != nil {
		return err
	}
	return nil
}

// ValidateName checks an entity display name.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidName)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidName, maxNameLength)
	}
	return nil
}

// ValidateExternalID checks the "<domain>.<object>" format. Both parts must
// be non-empty and consist of lowercase letters, digits and underscores.
func ValidateExternalID(externalID string) error {
	domain, object, err := SplitExternalID(externalID)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidExternalID, externalID)
	}
	for _, part := range []string{domain, object} {
		for _, r := range part {
			if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '_' {
				return fmt.Errorf("%w: %q contains invalid character %q", ErrInvalidExternalID, externalID, r)
			}
		}
	}
	return nil
}

// CheckInvariants verifies the source/external-id invariants:
//
//   - ExternalID is non-nil iff Source is external or hybrid.
//   - ExternalID, when set, is well-formed.
//   - Domain matches the external identifier prefix when Source is not internal.
func CheckInvariants(e *Entity) error {
	if e.Source.RequiresExternalID() {
		if e.ExternalID == nil {
			return fmt.Errorf("%w: source %q requires an external id", ErrInvariant, e.Source)
		}
		if err := ValidateExternalID(*e.ExternalID); err != nil {
			return err
		}
		if e.Domain != DomainOf(*e.ExternalID) {
			return fmt.Errorf("%w: domain %q does not match external id %q", ErrInvariant, e.Domain, *e.ExternalID)
		}
	} else if e.ExternalID != nil {
		return fmt.Errorf("%w: source %q must not carry an external id", ErrInvariant, e.Source)
	}
	return nil
}

// GenerateID creates a new opaque registry identifier.
func GenerateID() string {
	return uuid.New().String()
}

// GenerateLocalID derives a local identifier for an internally registered
// entity from its domain and display name, e.g. ("light", "Living Room Lamp")
// becomes "light.living_room_lamp". Uniqueness is enforced by the store.
func GenerateLocalID(domain, name string) string {
	return domain + "." + NormalizeObject(name)
}

// NormalizeObject converts a display name into an object identifier:
// lowercase, spaces and hyphens collapsed to underscores, all other
// non-alphanumeric characters dropped.
func NormalizeObject(name string) string {
	var b strings.Builder
	lastUnderscore := true // suppress leading underscore
	for _, r := range strings.ToLower(name) {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			lastUnderscore = false
		case r == ' ' || r == '-' || r == '_':
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	return strings.TrimRight(b.String(), "_")
}

// DefaultNameFor returns the display name an internally registered entity
// receives when none is supplied: the object part of its local identifier,
// humanised ("light.living_room_lamp" -> "Living Room Lamp"). The hybrid
// merge heuristic uses it to decide whether a name was customised.
func DefaultNameFor(localID string) string {
	object := ObjectOf(localID)
	if object == "" {
		object = localID
	}
	words := strings.Split(object, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
