package entity

import (
	"strings"
	"time"
)

// Source identifies the provenance of a registry record and determines
// identity and state authority.
type Source string

// Source values.
const (
	// SourceInternal marks records created by local registration. They have
	// no external counterpart and never carry an external identifier.
	SourceInternal Source = "internal"

	// SourceExternal marks records discovered from the external controller.
	// The controller is authoritative for their identity and state.
	SourceExternal Source = "external"

	// SourceHybrid marks records merged from internal and external origin:
	// externally authoritative for state, partly locally customised.
	SourceHybrid Source = "hybrid"
)

// Valid reports whether s is a recognised source value.
func (s Source) Valid() bool {
	switch s {
	case SourceInternal, SourceExternal, SourceHybrid:
		return true
	}
	return false
}

// RequiresExternalID reports whether records with this source must carry a
// non-nil external identifier. The invariant is strict in both directions:
// external/hybrid records always have one, internal records never do.
func (s Source) RequiresExternalID() bool {
	return s == SourceExternal || s == SourceHybrid
}

// CanTransitionTo reports whether a source transition is legal.
//
// Legal transitions:
//
//	internal -> external, hybrid
//	external -> internal, hybrid
//	hybrid   -> internal, external
//
// A self-transition is legal and treated as a no-op by callers.
func (s Source) CanTransitionTo(target Source) bool {
	if !s.Valid() || !target.Valid() {
		return false
	}
	// Every pair of distinct valid sources is connected; the interesting
	// work is in the external-identifier rules enforced alongside.
	return true
}

// Attributes is an opaque, order-insensitive map of string keys to scalar or
// nested values. Values are restricted to the JSON value domain (string,
// float64, bool, nil, nested map, slice) by virtue of being round-tripped
// through JSON on persistence.
type Attributes map[string]any

// Clone returns a deep copy of the attributes map.
// Nested maps and slices are recursively copied.
func (a Attributes) Clone() Attributes {
	if a == nil {
		return nil
	}
	cpy := make(Attributes, len(a))
	for k, v := range a {
		cpy[k] = cloneValue(v)
	}
	return cpy
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		cpy := make(map[string]any, len(val))
		for k, nested := range val {
			cpy[k] = cloneValue(nested)
		}
		return cpy
	case Attributes:
		return map[string]any(val.Clone())
	case []any:
		cpy := make([]any, len(val))
		for i, elem := range val {
			cpy[i] = cloneValue(elem)
		}
		return cpy
	default:
		// Primitives are safe to copy by value.
		return v
	}
}

// Entity is a controllable or observable device capability tracked by the
// registry. It mirrors a record owned by the external controller, a locally
// registered record, or a hybrid merge of both.
type Entity struct {
	// ID is the registry-assigned opaque identifier. It is never rewritten,
	// even when conflict resolution rewrites the local identifier.
	ID string `json:"id"`

	// LocalID is the local identifier, unique registry-wide. For external
	// and hybrid records it tracks the external identifier by convention;
	// conflict resolution rewrites it when the two drift apart.
	LocalID string `json:"local_id"`

	// DeviceID references the physical device this capability belongs to.
	DeviceID string `json:"device_id,omitempty"`

	// ExternalID is the controller-side identifier in "<domain>.<object>"
	// form. Non-nil exactly when Source is external or hybrid.
	ExternalID *string `json:"external_id,omitempty"`

	// Domain is derived from the external identifier prefix whenever the
	// source is not internal.
	Domain string `json:"domain"`

	Name string  `json:"name"`
	Icon *string `json:"icon,omitempty"`

	// State is the free-form state string reported by the controller, or
	// "unavailable" after a soft delete.
	State string `json:"state"`

	Attributes Attributes `json:"attributes"`

	Source Source `json:"source"`

	LastChanged time.Time `json:"last_changed"`
	LastUpdated time.Time `json:"last_updated"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ExternalIDValue returns the external identifier or "" when nil.
func (e *Entity) ExternalIDValue() string {
	if e.ExternalID == nil {
		return ""
	}
	return *e.ExternalID
}

// DeepCopy creates a complete independent copy of the Entity.
// Map fields are cloned so modifications to the copy do not affect the
// original. This is essential for cache isolation.
func (e *Entity) DeepCopy() *Entity {
	if e == nil {
		return nil
	}

	cpy := *e
	cpy.Attributes = e.Attributes.Clone()

	if e.ExternalID != nil {
		id := *e.ExternalID
		cpy.ExternalID = &id
	}
	if e.Icon != nil {
		icon := *e.Icon
		cpy.Icon = &icon
	}

	return &cpy
}

// SplitExternalID splits an external identifier into its domain and object
// parts. Returns ErrInvalidExternalID if the identifier is not of the form
// "<domain>.<object>".
func SplitExternalID(externalID string) (domain, object string, err error) {
	domain, object, ok := strings.Cut(externalID, ".")
	if !ok || domain == "" || object == "" {
		return "", "", ErrInvalidExternalID
	}
	return domain, object, nil
}

// DomainOf returns the domain prefix of an external identifier, or "" when
// the identifier is malformed.
func DomainOf(externalID string) string {
	domain, _, err := SplitExternalID(externalID)
	if err != nil {
		return ""
	}
	return domain
}

// ObjectOf returns the object part of an external identifier, or "" when
// the identifier is malformed.
func ObjectOf(externalID string) string {
	_, object, err := SplitExternalID(externalID)
	if err != nil {
		return ""
	}
	return object
}
